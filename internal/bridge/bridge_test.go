package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/views"
)

type memStore struct{}

func (memStore) PredefinedServers() []servers.ServerSpec    { return nil }
func (memStore) LocalServers() []servers.ServerSpec         { return nil }
func (memStore) EnableServerManagement() bool               { return true }
func (memStore) SetServers([]servers.ServerSpec, int) error { return nil }

// scriptRenderer is a renderer whose local storage holds a fixed token.
type scriptRenderer struct {
	mu     sync.Mutex
	token  string
	loads  []string
	loaded chan string
}

func newScriptRenderer(token string) *scriptRenderer {
	return &scriptRenderer{token: token, loaded: make(chan string, 16)}
}

func (r *scriptRenderer) Load(_ context.Context, url string) error {
	r.mu.Lock()
	r.loads = append(r.loads, url)
	r.mu.Unlock()
	r.loaded <- url
	return nil
}

func (r *scriptRenderer) CurrentURL() string                    { return "" }
func (r *scriptRenderer) CanGoBack() bool                       { return false }
func (r *scriptRenderer) CanGoForward() bool                    { return false }
func (r *scriptRenderer) GoToOffset(int) error                  { return nil }
func (r *scriptRenderer) ClearHistory()                         {}
func (r *scriptRenderer) Send(string, ...any)                   {}
func (r *scriptRenderer) IsDestroyed() bool                     { return false }
func (r *scriptRenderer) Close()                                {}

func (r *scriptRenderer) EvaluateScript(_ context.Context, expr string) (string, error) {
	if strings.Contains(expr, "auth_token") {
		return r.token, nil
	}
	return "", nil
}

type noopNotifier struct{}

func (noopNotifier) LoadSuccess(string, string)                 {}
func (noopNotifier) LoadFailed(string, string, string)          {}
func (noopNotifier) LoadRetry(string, time.Time, string, string) {}
func (noopNotifier) LoadIncompatible(string, string)            {}
func (noopNotifier) LoadscreenEnd(string)                       {}
func (noopNotifier) HistoryStatus(string, bool, bool)           {}
func (noopNotifier) TitleUpdated(string, string)                {}

type stubCookies struct {
	hasSession bool
}

func (c stubCookies) HasSessionCookie(context.Context, *url.URL) (bool, error) {
	return c.hasSession, nil
}

type okReach struct{}

func (okReach) Ping(context.Context, *url.URL) error { return nil }

func setup(t *testing.T, sourceURL string, cookies CookieStore) (*Bridge, *servers.Manager, *views.Manager, map[string]*scriptRenderer) {
	t.Helper()
	registry := servers.NewManager(memStore{}, logging.NewNop())
	registry.Init()

	renderers := make(map[string]*scriptRenderer)
	factory := func(surfaceID string) views.Renderer {
		r := newScriptRenderer("session-token")
		renderers[surfaceID] = r
		return r
	}
	surfaces := views.NewManager(registry, factory, okReach{}, noopNotifier{}, logging.NewNop())
	surfaces.Init()

	br := New(registry, surfaces, cookies, logging.NewNop())
	return br, registry, surfaces, renderers
}

func drainInitialLoads(surfaces *views.Manager, renderers map[string]*scriptRenderer) {
	for _, s := range surfaces.All() {
		if r, ok := renderers[s.ID()]; ok {
			<-r.loaded
		}
	}
}

func TestSwitchServer(t *testing.T) {
	br, registry, _, _ := setup(t, "", stubCookies{})
	a := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	b := registry.Add(servers.ServerSpec{Name: "b", URL: "https://b.example.com"}, nil)

	if err := br.SwitchServer(context.Background(), b.ID); err != nil {
		t.Fatalf("SwitchServer failed: %v", err)
	}
	if registry.CurrentID() != b.ID {
		t.Error("switch did not update the current server")
	}
	_ = a

	if err := br.SwitchServer(context.Background(), "no-such-id"); err == nil {
		t.Error("unknown server id should error")
	}
}

func TestSwitchServerHandsOffSession(t *testing.T) {
	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"user@example.com"}`))
	}))
	defer api.Close()

	br, registry, surfaces, renderers := setup(t, api.URL, stubCookies{hasSession: false})
	source := registry.Add(servers.ServerSpec{Name: "source", URL: api.URL}, nil)
	target := registry.Add(servers.ServerSpec{Name: "target", URL: "https://target.example.com"}, nil)
	drainInitialLoads(surfaces, renderers)

	if registry.CurrentID() != source.ID {
		t.Fatal("source should start current")
	}

	if err := br.SwitchServer(context.Background(), target.ID); err != nil {
		t.Fatalf("SwitchServer failed: %v", err)
	}
	if gotAuth != "Bearer session-token" {
		t.Errorf("user-info request auth = %q", gotAuth)
	}

	targetSurface, _ := surfaces.ForServer(target.ID)
	renderer := renderers[targetSurface.ID()]
	loaded := <-renderer.loaded
	parsed, err := url.Parse(loaded)
	if err != nil {
		t.Fatalf("deep link unparseable: %v", err)
	}
	if parsed.Path != "/login" || parsed.Query().Get("email") != "user@example.com" {
		t.Errorf("switching servers should relay the session, got %q", loaded)
	}
}

func TestActiveAppName(t *testing.T) {
	br, registry, _, _ := setup(t, "", stubCookies{})
	if got := br.ActiveAppName(); got != "" {
		t.Errorf("no current server should yield empty name, got %q", got)
	}

	registry.Add(servers.ServerSpec{Name: "chat", URL: "https://a.example.com"}, nil)
	if got := br.ActiveAppName(); got != "chat" {
		t.Errorf("ActiveAppName = %q", got)
	}
}

func TestSwitchAppHandsOffSession(t *testing.T) {
	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"user@example.com"}`))
	}))
	defer api.Close()

	br, registry, surfaces, renderers := setup(t, api.URL, stubCookies{hasSession: false})
	source := registry.Add(servers.ServerSpec{Name: "source", URL: api.URL}, nil)
	target := registry.Add(servers.ServerSpec{Name: "target", URL: "https://target.example.com"}, nil)
	drainInitialLoads(surfaces, renderers)

	if registry.CurrentID() != source.ID {
		t.Fatal("source should start current")
	}

	if err := br.SwitchApp(context.Background(), target.ID); err != nil {
		t.Fatalf("SwitchApp failed: %v", err)
	}
	if registry.CurrentID() != target.ID {
		t.Error("switch did not update the current server")
	}

	if gotAuth != "Bearer session-token" {
		t.Errorf("user-info request auth = %q", gotAuth)
	}

	targetSurface, _ := surfaces.ForServer(target.ID)
	renderer := renderers[targetSurface.ID()]
	loaded := <-renderer.loaded
	parsed, err := url.Parse(loaded)
	if err != nil {
		t.Fatalf("deep link unparseable: %v", err)
	}
	if parsed.Path != "/login" {
		t.Errorf("deep link path = %q", parsed.Path)
	}
	if parsed.Query().Get("extra") != "email_login" || parsed.Query().Get("email") != "user@example.com" {
		t.Errorf("deep link query = %q", parsed.RawQuery)
	}
}

func TestSwitchAppSkipsHandoffWithExistingSession(t *testing.T) {
	br, registry, surfaces, renderers := setup(t, "", stubCookies{hasSession: true})
	registry.Add(servers.ServerSpec{Name: "source", URL: "https://source.example.com"}, nil)
	target := registry.Add(servers.ServerSpec{Name: "target", URL: "https://target.example.com"}, nil)
	drainInitialLoads(surfaces, renderers)

	if err := br.SwitchApp(context.Background(), target.ID); err != nil {
		t.Fatalf("SwitchApp failed: %v", err)
	}
	if registry.CurrentID() != target.ID {
		t.Error("switch did not update the current server")
	}

	targetSurface, _ := surfaces.ForServer(target.ID)
	renderer := renderers[targetSurface.ID()]
	select {
	case loaded := <-renderer.loaded:
		t.Errorf("no navigation expected with an existing session, got %q", loaded)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSwitchAppUnknownTarget(t *testing.T) {
	br, _, _, _ := setup(t, "", stubCookies{})
	if err := br.SwitchApp(context.Background(), "no-such-id"); err == nil {
		t.Error("unknown target should error")
	}
}

func TestSwitchAppTogglesToOtherServer(t *testing.T) {
	br, registry, surfaces, renderers := setup(t, "", stubCookies{hasSession: true})
	a := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	b := registry.Add(servers.ServerSpec{Name: "b", URL: "https://b.example.com"}, nil)
	drainInitialLoads(surfaces, renderers)

	if err := br.SwitchApp(context.Background(), ""); err != nil {
		t.Fatalf("SwitchApp failed: %v", err)
	}
	if registry.CurrentID() != b.ID {
		t.Error("toggle should land on the other server")
	}

	if err := br.SwitchApp(context.Background(), ""); err != nil {
		t.Fatalf("SwitchApp failed: %v", err)
	}
	if registry.CurrentID() != a.ID {
		t.Error("toggling again should return to the first server")
	}
}

func TestSwitchAppNoOpWithSingleServer(t *testing.T) {
	br, registry, surfaces, renderers := setup(t, "", stubCookies{hasSession: true})
	only := registry.Add(servers.ServerSpec{Name: "only", URL: "https://only.example.com"}, nil)
	drainInitialLoads(surfaces, renderers)

	if err := br.SwitchApp(context.Background(), ""); err != nil {
		t.Fatalf("SwitchApp failed: %v", err)
	}
	if registry.CurrentID() != only.ID {
		t.Error("toggle with a single server should keep it current")
	}
}
