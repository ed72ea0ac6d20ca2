// Package api is the HTTP front end of the device: login, then install,
// uninstall, list, query and play games for the logged in user.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rxanders35/mesh/pkg/flash"
	"github.com/rxanders35/mesh/pkg/games"
	"github.com/rxanders35/mesh/pkg/header"
	"github.com/rxanders35/mesh/pkg/ledger"
	"github.com/rxanders35/mesh/pkg/mesh"
	"github.com/rxanders35/mesh/pkg/policy"
	"github.com/rxanders35/mesh/pkg/users"
)

const (
	sessionKey = "session"
	// maxDump caps a single dump request
	maxDump = flash.PageSize
	// PackageSizeHeader carries the full package size on play responses
	PackageSizeHeader = "X-Mesh-Package-Size"
)

type MeshHandler struct {
	svc      *mesh.Service
	sessions *users.Registry
}

func NewMeshHandler(svc *mesh.Service, sessions *users.Registry) *MeshHandler {
	return &MeshHandler{
		svc:      svc,
		sessions: sessions,
	}
}

type loginRequest struct {
	User string `json:"user" binding:"required"`
	PIN  string `json:"pin" binding:"required"`
}

func (m *MeshHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid req body"})
		return
	}
	sess, err := m.svc.Login(c.Request.Context(), req.User, req.PIN)
	if err != nil {
		fail(c, err)
		return
	}
	m.sessions.Set(sess)
	c.JSON(http.StatusOK, gin.H{"token": sess.ID.String(), "user": sess.Name})
}

// RequireSession resolves the bearer token to the current session.
func (m *MeshHandler) RequireSession(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	id, err := uuid.Parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	sess, err := m.sessions.Get(id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func session(c *gin.Context) users.Session {
	return c.MustGet(sessionKey).(users.Session)
}

func (m *MeshHandler) Logout(c *gin.Context) {
	m.sessions.Clear(session(c).ID)
	c.Status(http.StatusNoContent)
}

func (m *MeshHandler) Status(c *gin.Context) {
	first, err := m.svc.IsFirstBoot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"first_boot": first})
}

func (m *MeshHandler) List(c *gin.Context) {
	names, err := m.svc.ListInstalled(c.Request.Context(), session(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": names})
}

func (m *MeshHandler) Query(c *gin.Context) {
	names, err := m.svc.Query(c.Request.Context(), session(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": names})
}

func (m *MeshHandler) Install(c *gin.Context) {
	game := c.Param("game")
	if err := m.svc.Install(c.Request.Context(), session(c), game); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"game": game})
}

func (m *MeshHandler) Uninstall(c *gin.Context) {
	game := c.Param("game")
	ok, err := m.svc.Uninstall(c.Request.Context(), session(c), game)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": game, "uninstalled": ok})
}

func (m *MeshHandler) Play(c *gin.Context) {
	l, err := m.svc.Play(c.Request.Context(), session(c), c.Param("game"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header(PackageSizeHeader, strconv.FormatInt(l.Size, 10))
	c.Data(http.StatusOK, "application/octet-stream", l.Body)
}

func (m *MeshHandler) Dump(c *gin.Context) {
	offset, err := strconv.ParseUint(c.DefaultQuery("offset", "0x40"), 0, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	size, err := strconv.ParseUint(c.DefaultQuery("size", "256"), 0, 32)
	if err != nil || size > maxDump {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	d, err := m.svc.Dump(c.Request.Context(), uint32(offset), uint32(size))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"offset": d.Offset,
		"size":   len(d.Data),
		"blake3": d.Digest,
		"hex":    d.Hex(),
	})
}

func (m *MeshHandler) Reset(c *gin.Context) {
	if err := m.svc.ResetFlash(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, users.ErrAuth), errors.Is(err, users.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, policy.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, policy.ErrNotFound), errors.Is(err, mesh.ErrNotInstalled):
		return http.StatusNotFound
	case errors.Is(err, policy.ErrAlreadyInstalled), errors.Is(err, policy.ErrDowngrade):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidName), errors.Is(err, ledger.ErrInvalidFullName),
		errors.Is(err, games.ErrBadName), errors.Is(err, flash.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, header.ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrFull):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}
