package views

import (
	"testing"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
)

type memStore struct {
	local []servers.ServerSpec
}

func (s *memStore) PredefinedServers() []servers.ServerSpec { return nil }
func (s *memStore) LocalServers() []servers.ServerSpec      { return s.local }
func (s *memStore) EnableServerManagement() bool            { return true }
func (s *memStore) SetServers([]servers.ServerSpec, int) error {
	return nil
}

func newTestViewManager(t *testing.T) (*Manager, *servers.Manager, map[string]*fakeRenderer) {
	t.Helper()
	registry := servers.NewManager(&memStore{}, logging.NewNop())
	registry.Init()

	renderers := make(map[string]*fakeRenderer)
	factory := func(surfaceID string) Renderer {
		r := newFakeRenderer()
		renderers[surfaceID] = r
		return r
	}
	m := NewManager(registry, factory, &fakeReach{}, &fakeNotifier{}, logging.NewNop())
	m.Init()
	return m, registry, renderers
}

func TestSurfaceCreatedOnServerAdded(t *testing.T) {
	m, registry, _ := newTestViewManager(t)

	srv := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	surface, ok := m.ForServer(srv.ID)
	if !ok {
		t.Fatal("adding a server should create its surface")
	}
	defer surface.Destroy()

	if surface.ServerID() != srv.ID {
		t.Error("surface bound to the wrong server")
	}

	current, ok := m.Current()
	if !ok || current.ID() != surface.ID() {
		t.Error("the current server's surface should be current")
	}
}

func TestSurfaceDestroyedOnServerRemoved(t *testing.T) {
	m, registry, _ := newTestViewManager(t)

	srv := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	surface, _ := m.ForServer(srv.ID)

	registry.Remove(srv.ID)

	if _, ok := m.ForServer(srv.ID); ok {
		t.Error("removing a server should drop its surface")
	}
	if !surface.IsDestroyed() {
		t.Error("the dropped surface should be destroyed")
	}
}

func TestSurfaceReloadedOnURLChange(t *testing.T) {
	m, registry, renderers := newTestViewManager(t)

	srv := registry.Add(servers.ServerSpec{Name: "a", URL: "https://a.example.com"}, nil)
	surface, _ := m.ForServer(srv.ID)
	defer surface.Destroy()

	renderer := renderers[surface.ID()]
	<-renderer.loaded // initial load

	registry.Edit(srv.ID, servers.ServerSpec{Name: "a", URL: "https://moved.example.com"})

	got := <-renderer.loaded
	if got != "https://moved.example.com/" {
		t.Errorf("URL change should reload against the new URL, got %q", got)
	}
}

func TestInitCreatesSurfacesForExistingServers(t *testing.T) {
	registry := servers.NewManager(&memStore{
		local: []servers.ServerSpec{{Name: "pre", URL: "https://pre.example.com"}},
	}, logging.NewNop())
	registry.Init()

	renderers := make(map[string]*fakeRenderer)
	factory := func(surfaceID string) Renderer {
		r := newFakeRenderer()
		renderers[surfaceID] = r
		return r
	}
	m := NewManager(registry, factory, &fakeReach{}, &fakeNotifier{}, logging.NewNop())
	m.Init()

	if len(m.All()) != 1 {
		t.Fatalf("expected a surface per existing server, got %d", len(m.All()))
	}
	for _, s := range m.All() {
		s.Destroy()
	}
}
