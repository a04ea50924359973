package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskshell/deskshell/internal/bridge"
	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/probe"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/store"
	"github.com/deskshell/deskshell/internal/views"
)

type memStore struct {
	management bool
}

func (s *memStore) PredefinedServers() []servers.ServerSpec    { return nil }
func (s *memStore) LocalServers() []servers.ServerSpec         { return nil }
func (s *memStore) EnableServerManagement() bool               { return s.management }
func (s *memStore) SetServers([]servers.ServerSpec, int) error { return nil }

type nullRenderer struct{}

func (nullRenderer) Load(context.Context, string) error          { return nil }
func (nullRenderer) CurrentURL() string                          { return "" }
func (nullRenderer) CanGoBack() bool                             { return false }
func (nullRenderer) CanGoForward() bool                          { return false }
func (nullRenderer) GoToOffset(int) error                        { return nil }
func (nullRenderer) ClearHistory()                               {}
func (nullRenderer) Send(string, ...any)                         {}
func (nullRenderer) EvaluateScript(context.Context, string) (string, error) { return "", nil }
func (nullRenderer) IsDestroyed() bool                           { return false }
func (nullRenderer) Close()                                      {}

type nullNotifier struct{}

func (nullNotifier) LoadSuccess(string, string)                  {}
func (nullNotifier) LoadFailed(string, string, string)           {}
func (nullNotifier) LoadRetry(string, time.Time, string, string) {}
func (nullNotifier) LoadIncompatible(string, string)             {}
func (nullNotifier) LoadscreenEnd(string)                        {}
func (nullNotifier) HistoryStatus(string, bool, bool)            {}
func (nullNotifier) TitleUpdated(string, string)                 {}

type nullReach struct{}

func (nullReach) Ping(context.Context, *url.URL) error { return nil }

type nullCookies struct{}

func (nullCookies) HasSessionCookie(context.Context, *url.URL) (bool, error) { return false, nil }

func newTestRouter(t *testing.T, management bool) (*gin.Engine, *servers.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := servers.NewManager(&memStore{management: management}, logging.NewNop())
	registry.Init()

	surfaces := views.NewManager(registry,
		func(string) views.Renderer { return nullRenderer{} },
		nullReach{}, nullNotifier{}, logging.NewNop())
	surfaces.Init()

	br := bridge.New(registry, surfaces, nullCookies{}, logging.NewNop())
	windowStatePath := filepath.Join(t.TempDir(), "window-state.json")
	handlers := NewHandlers(registry, probe.NewRemoteProber(), br, surfaces, windowStatePath, logging.NewNop())

	router := gin.New()
	router.POST("/servers/validate", handlers.ValidateServer)
	router.GET("/servers/ordered", handlers.GetOrderedServers)
	router.PUT("/servers/order", handlers.UpdateServerOrder)
	router.POST("/servers", handlers.AddServer)
	router.PUT("/servers/:id", handlers.EditServer)
	router.DELETE("/servers/:id", handlers.RemoveServer)
	router.GET("/servers/current", handlers.GetCurrentServer)
	router.POST("/servers/:id/switch", handlers.SwitchServer)
	router.POST("/app/switch", handlers.SwitchApp)
	router.GET("/app/active", handlers.GetActiveApp)
	router.GET("/health", handlers.Health)
	router.GET("/window/state", handlers.GetWindowState)
	router.PUT("/window/state", handlers.SaveWindowState)
	return router, registry
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAddServerEndToEnd(t *testing.T) {
	router, registry := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/servers", `{"name":"t","url":"http://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Server  servers.UniqueServer `json:"server"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "https://example.com/", resp.Server.URL, "scheme should be upgraded")

	// The first added server becomes current.
	w = doJSON(router, http.MethodGet, "/servers/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	var current struct {
		Server *servers.UniqueServer `json:"server"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	require.NotNil(t, current.Server)
	assert.Equal(t, resp.Server.ID, current.Server.ID)
	assert.Equal(t, 1, len(registry.All()))
}

func TestAddServerForbiddenUnderLockdown(t *testing.T) {
	router, registry := newTestRouter(t, false)

	w := doJSON(router, http.MethodPost, "/servers", `{"name":"t","url":"https://example.com"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, len(registry.All()))
}

func TestValidateMissingURL(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/servers/validate", `{"url":""}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result probe.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, probe.StatusMissing, resp.Result.Status)
}

func TestValidateDuplicate(t *testing.T) {
	router, registry := newTestRouter(t, true)
	registry.Add(servers.ServerSpec{Name: "work", URL: "https://dup.example.com"}, nil)

	w := doJSON(router, http.MethodPost, "/servers/validate", `{"url":"http://dup.example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result probe.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, probe.StatusURLExists, resp.Result.Status)
	assert.Equal(t, "work", resp.Result.ExistingServerName)
}

func TestOrderedServers(t *testing.T) {
	router, registry := newTestRouter(t, true)
	a := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	b := registry.Add(servers.ServerSpec{Name: "b", URL: "https://b.example.com"}, nil)

	w := doJSON(router, http.MethodPut, "/servers/order", `{"order":["`+b.ID+`","`+a.ID+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/servers/ordered", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Servers   []servers.UniqueServer `json:"servers"`
		CurrentID string                 `json:"currentId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Servers, 2)
	assert.Equal(t, b.ID, resp.Servers[0].ID)
	assert.Equal(t, a.ID, resp.CurrentID)
}

func TestRemoveUnknownServer(t *testing.T) {
	router, _ := newTestRouter(t, true)
	w := doJSON(router, http.MethodDelete, "/servers/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwitchServerEndpoint(t *testing.T) {
	router, registry := newTestRouter(t, true)
	registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	b := registry.Add(servers.ServerSpec{Name: "b", URL: "https://b.example.com"}, nil)

	w := doJSON(router, http.MethodPost, "/servers/"+b.ID+"/switch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, b.ID, registry.CurrentID())

	w = doJSON(router, http.MethodPost, "/servers/no-such-id/switch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwitchAppEndpointToggles(t *testing.T) {
	router, registry := newTestRouter(t, true)
	a := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	b := registry.Add(servers.ServerSpec{Name: "b", URL: "https://b.example.com"}, nil)
	require.Equal(t, a.ID, registry.CurrentID())

	w := doJSON(router, http.MethodPost, "/app/switch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, b.ID, registry.CurrentID())

	w = doJSON(router, http.MethodPost, "/app/switch", `{"serverId":"`+a.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, a.ID, registry.CurrentID())
}

func TestActiveAppEndpoint(t *testing.T) {
	router, registry := newTestRouter(t, true)
	registry.Add(servers.ServerSpec{Name: "chat", URL: "https://a.example.com"}, nil)

	w := doJSON(router, http.MethodGet, "/app/active", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat", resp.Name)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, true)
	w := doJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWindowStateEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := doJSON(router, http.MethodGet, "/window/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		State store.WindowState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, store.DefaultWindowState(), resp.State)

	w = doJSON(router, http.MethodPut, "/window/state",
		`{"x":5,"y":10,"width":1600,"height":900,"maximized":true,"fullscreen":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/window/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, store.WindowState{X: 5, Y: 10, Width: 1600, Height: 900, Maximized: true}, resp.State)
}
