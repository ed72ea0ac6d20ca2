package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxanders35/mesh/pkg/flash"
	"github.com/rxanders35/mesh/pkg/games"
	"github.com/rxanders35/mesh/pkg/metrics"
	"github.com/rxanders35/mesh/pkg/mesh"
	"github.com/rxanders35/mesh/pkg/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	for _, p := range []struct{ name, version, users string }{
		{"chess-v1.1", "1.1", "alice"},
		{"chess-v1.2", "1.2", "alice"},
		{"pong-v1.0", "1.0", "bob"},
	} {
		body := fmt.Sprintf("version:%s\nname:%s\nusers:%s\nBIN", p.version, p.name, p.users)
		require.NoError(t, os.WriteFile(filepath.Join(dir, p.name), []byte(body), 0644))
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	table := users.NewStaticTable([]users.Credential{{Name: "alice", PIN: "11111111"}})
	svc := mesh.New(flash.New(flash.NewMemoryMedium(flash.PageSize), flash.WithMetrics(met)),
		games.NewDir(dir), table, mesh.WithMetrics(met))
	require.NoError(t, svc.Boot(context.Background()))

	return NewHTTPServer("", svc, reg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func loginAlice(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/v1/mesh/login", "", `{"user":"alice","pin":"11111111"}`)
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["token"].(string)
}

func TestLogin(t *testing.T) {
	h := newServer(t)

	w := do(t, h, http.MethodPost, "/v1/mesh/login", "", `{"user":"alice","pin":"99999999"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/v1/mesh/login", "", `{"user":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/v1/mesh/games", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/v1/mesh/games", "not-a-uuid", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := loginAlice(t, h)
	w = do(t, h, http.MethodPost, "/v1/mesh/logout", token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/v1/mesh/games", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInstallFlow(t *testing.T) {
	h := newServer(t)
	token := loginAlice(t, h)

	w := do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.2", token, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodGet, "/v1/mesh/games", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"chess-v1.2"}, decode(t, w)["games"])

	w = do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.2", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/v1/mesh/uninstall/chess-v1.2", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["uninstalled"])

	w = do(t, h, http.MethodPost, "/v1/mesh/uninstall/chess-v1.2", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["uninstalled"])

	w = do(t, h, http.MethodGet, "/v1/mesh/games", token, "")
	assert.Equal(t, []any{}, decode(t, w)["games"])

	w = do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.1", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "downgrade")
}

func TestInstallErrors(t *testing.T) {
	h := newServer(t)
	token := loginAlice(t, h)

	for path, code := range map[string]int{
		"/v1/mesh/install/pong-v1.0":   http.StatusForbidden,
		"/v1/mesh/install/tetris-v1.0": http.StatusNotFound,
		"/v1/mesh/install/tetris":      http.StatusBadRequest,
	} {
		w := do(t, h, http.MethodPost, path, token, "")
		assert.Equal(t, code, w.Code, path)
	}
}

func TestQueryAndPlay(t *testing.T) {
	h := newServer(t)
	token := loginAlice(t, h)

	w := do(t, h, http.MethodGet, "/v1/mesh/query", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"chess-v1.1", "chess-v1.2"}, decode(t, w)["games"])

	w = do(t, h, http.MethodGet, "/v1/mesh/play/chess-v1.2", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.2", token, "")
	w = do(t, h, http.MethodGet, "/v1/mesh/play/chess-v1.2", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BIN", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(PackageSizeHeader))
}

func TestStatusDumpReset(t *testing.T) {
	h := newServer(t)
	token := loginAlice(t, h)

	w := do(t, h, http.MethodGet, "/v1/mesh/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["first_boot"])

	w = do(t, h, http.MethodGet, "/v1/mesh/dump?offset=0x40&size=4", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "0x000000 78 56 34 12 \n", body["hex"])
	assert.Len(t, body["blake3"], 64)

	w = do(t, h, http.MethodGet, "/v1/mesh/dump?offset=0xffff&size=2", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/v1/mesh/dump?size=junk", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.2", token, "")
	w = do(t, h, http.MethodPost, "/v1/mesh/reset", token, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// the session survives, the table does not
	w = do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.1", token, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newServer(t)
	token := loginAlice(t, h)
	do(t, h, http.MethodPost, "/v1/mesh/install/chess-v1.2", token, "")
	do(t, h, http.MethodPost, "/v1/mesh/install/pong-v1.0", token, "")

	w := do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `mesh_installs_total{result="ok"} 1`)
	assert.Contains(t, w.Body.String(), `mesh_installs_total{result="unauthorized"} 1`)
	assert.Contains(t, w.Body.String(), "mesh_flash_page_programs_total")
}
