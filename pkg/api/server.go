package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rxanders35/mesh/pkg/mesh"
	"github.com/rxanders35/mesh/pkg/users"
)

type HTTPServer struct {
	addr    string
	engine  *gin.Engine
	handler *MeshHandler
	srv     *http.Server
}

// NewHTTPServer serves svc on addr. Metrics are exported from gatherer at
// /metrics when it is not nil.
func NewHTTPServer(addr string, svc *mesh.Service, gatherer prometheus.Gatherer) *HTTPServer {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	h := &HTTPServer{
		addr:    addr,
		engine:  engine,
		handler: NewMeshHandler(svc, &users.Registry{}),
	}
	h.registerRoutes()
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return h
}

func (h *HTTPServer) registerRoutes() {
	v1 := h.engine.Group("/v1")

	m := v1.Group("/mesh")
	m.POST("/login", h.handler.Login)
	m.GET("/status", h.handler.Status)

	authed := m.Group("", h.handler.RequireSession)
	authed.POST("/logout", h.handler.Logout)
	authed.GET("/games", h.handler.List)
	authed.GET("/query", h.handler.Query)
	authed.POST("/install/:game", h.handler.Install)
	authed.POST("/uninstall/:game", h.handler.Uninstall)
	authed.GET("/play/:game", h.handler.Play)
	authed.GET("/dump", h.handler.Dump)
	authed.POST("/reset", h.handler.Reset)
}

// Handler exposes the routes without a listener.
func (h *HTTPServer) Handler() http.Handler { return h.engine }

func (h *HTTPServer) Run() error {
	h.srv = &http.Server{
		Addr:    h.addr,
		Handler: h.engine,
	}
	return h.srv.ListenAndServe()
}

func (h *HTTPServer) Shutdown(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}
