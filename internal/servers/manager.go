package servers

import (
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/urlutil"
)

// Manager is the single writer for the configured server set, its
// order, the current selection, and cached remote identity data.
// Collaborators read through accessors and observe changes on the
// event bus; nothing outside this type mutates registry state.
type Manager struct {
	mu         sync.RWMutex
	servers    map[string]*Server
	remoteInfo map[string]*RemoteInfo
	order      []string
	currentID  string

	store ConfigStore
	bus   *Bus
	log   *logging.Logger
}

// NewManager creates a registry backed by the given store. Call Init
// to populate it from persisted configuration.
func NewManager(store ConfigStore, log *logging.Logger) *Manager {
	return &Manager{
		servers:    make(map[string]*Server),
		remoteInfo: make(map[string]*RemoteInfo),
		store:      store,
		bus:        NewBus(),
		log:        log.Named("servers"),
	}
}

// Events returns the registry's event bus for subscription.
func (m *Manager) Events() *Bus {
	return m.bus
}

// Init loads servers from persisted configuration: all predefined
// servers when any exist, otherwise the first persisted local server,
// and that only when server management is enabled. The first loaded
// server becomes current.
func (m *Manager) Init() {
	m.mu.Lock()
	m.servers = make(map[string]*Server)
	m.remoteInfo = make(map[string]*RemoteInfo)
	m.order = nil
	m.currentID = ""

	var initial []*Server
	if predefined := m.store.PredefinedServers(); len(predefined) > 0 {
		for _, spec := range predefined {
			if srv := m.newServer(spec, true, nil); srv != nil {
				initial = append(initial, srv)
			}
		}
	} else if locals := m.store.LocalServers(); m.store.EnableServerManagement() && len(locals) > 0 {
		if srv := m.newServer(locals[0], false, nil); srv != nil {
			initial = append(initial, srv)
		}
	}

	var events []Event
	for i, srv := range dedupe(initial) {
		events = append(events, m.insertLocked(srv, i == 0))
	}
	m.mu.Unlock()

	m.emit(events)
}

// HasServers reports whether any server is configured.
func (m *Manager) HasServers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.servers) > 0
}

// Get retrieves a server by id.
func (m *Manager) Get(id string) (*Server, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[id]
	if !ok {
		return nil, false
	}
	clone := *srv
	return &clone, true
}

// All returns every configured server.
func (m *Manager) All() []*Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allLocked()
}

func (m *Manager) allLocked() []*Server {
	out := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		clone := *srv
		out = append(out, &clone)
	}
	return out
}

// Ordered returns servers in display order: predefined servers first,
// in registration order, then user servers in the stored order.
func (m *Manager) Ordered() []*Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderedLocked()
}

func (m *Manager) orderedLocked() []*Server {
	out := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		if srv.IsPredefined {
			clone := *srv
			out = append(out, &clone)
		}
	}
	for _, id := range m.order {
		if srv, ok := m.servers[id]; ok {
			clone := *srv
			out = append(out, &clone)
		}
	}
	return out
}

// CurrentID returns the id of the current server, or "" when none.
func (m *Manager) CurrentID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentID
}

// RemoteInfo returns cached probe data for a server, if any.
func (m *Manager) RemoteInfo(id string) (*RemoteInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.remoteInfo[id]
	if !ok {
		return nil, false
	}
	clone := *info
	return &clone, true
}

// LookupByURL finds the server whose origin matches the candidate URL
// and whose base path prefixes the candidate's path.
func (m *Manager) LookupByURL(candidate *url.URL, ignoreScheme bool) (*Server, bool) {
	if candidate == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, srv := range m.servers {
		if urlutil.IsInternalURL(candidate, srv.URL, ignoreScheme) &&
			strings.HasPrefix(urlutil.FormatPathName(candidate.Path), urlutil.FormatPathName(srv.URL.Path)) {
			clone := *srv
			return &clone, true
		}
	}
	return nil, false
}

// Add creates a server from a spec, appends it to the order, persists,
// and publishes a creation event. It is a logged no-op when server
// management is disabled for this deployment.
func (m *Manager) Add(spec ServerSpec, initialLoadURL *url.URL) *Server {
	if !m.store.EnableServerManagement() {
		m.log.Warn("add server refused: server management is disabled")
		return nil
	}

	m.mu.Lock()
	srv := m.newServer(spec, false, initialLoadURL)
	if srv == nil {
		m.mu.Unlock()
		return nil
	}
	event := m.insertLocked(srv, m.currentID == "")
	m.persistLocked()
	clone := *srv
	m.mu.Unlock()

	m.emit([]Event{event})
	return &clone
}

// Edit updates a server's name and URL. Predefined servers are
// immutable: the unchanged server is returned. Unknown ids return nil.
func (m *Manager) Edit(id string, spec ServerSpec) *Server {
	m.mu.Lock()
	srv, ok := m.servers[id]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("edit: server not found", zap.String("serverId", id))
		return nil
	}
	if srv.IsPredefined {
		clone := *srv
		m.mu.Unlock()
		m.log.Warn("cannot edit predefined server", zap.String("serverId", id))
		return &clone
	}

	var events []Event
	if newURL, ok := urlutil.Parse(spec.URL); ok && srv.URL.String() != newURL.String() {
		srv.URL = newURL
		events = append(events, Event{Type: EventURLChanged, ServerID: id})
	}
	if srv.Name != spec.Name {
		srv.Name = spec.Name
		events = append(events, Event{Type: EventNameChanged, ServerID: id})
	}
	m.persistLocked()
	clone := *srv
	m.mu.Unlock()

	m.emit(events)
	return &clone
}

// Remove deletes a server, fixes the current selection, persists, and
// publishes a removal event. It is a logged no-op when server
// management is disabled.
func (m *Manager) Remove(id string) {
	if !m.store.EnableServerManagement() {
		m.log.Warn("remove server refused: server management is disabled")
		return
	}

	m.mu.Lock()
	if _, ok := m.servers[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.servers, id)
	delete(m.remoteInfo, id)
	for i, orderedID := range m.order {
		if orderedID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	events := []Event{{Type: EventRemoved, ServerID: id}}
	if m.currentID == id {
		m.currentID = ""
		if remaining := m.orderedLocked(); len(remaining) > 0 {
			m.currentID = remaining[0].ID
			events = append(events, Event{Type: EventSwitched, ServerID: m.currentID})
		}
	}
	m.persistLocked()
	m.mu.Unlock()

	m.emit(events)
}

// UpdateCurrent switches the current server. Unknown ids and no-op
// switches are ignored.
func (m *Manager) UpdateCurrent(id string) {
	m.mu.Lock()
	if m.currentID == id {
		m.mu.Unlock()
		return
	}
	if _, ok := m.servers[id]; !ok {
		m.mu.Unlock()
		return
	}
	m.currentID = id
	m.persistLocked()
	m.mu.Unlock()

	m.emit([]Event{{Type: EventSwitched, ServerID: id}})
}

// UpdateRemoteInfo replaces cached probe data. When the remote's
// canonical site URL differs from the stored URL and the caller
// asserts it was validated, the stored URL is rewritten and a
// URL-changed event is published.
func (m *Manager) UpdateRemoteInfo(id string, info RemoteInfo, siteURLValidated bool) {
	m.mu.Lock()
	srv, ok := m.servers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.remoteInfo[id] = &info

	var events []Event
	if siteURLValidated && info.SiteURL != "" {
		if siteURL, ok := urlutil.Parse(info.SiteURL); ok && srv.URL.String() != siteURL.String() {
			srv.URL = siteURL
			events = append(events, Event{Type: EventURLChanged, ServerID: id})
			m.persistLocked()
		}
	}
	m.mu.Unlock()

	m.emit(events)
}

// UpdateServerOrder replaces the stored order, dropping ids that are
// unknown or belong to predefined servers.
func (m *Manager) UpdateServerOrder(order []string) {
	m.mu.Lock()
	filtered := make([]string, 0, len(order))
	for _, id := range order {
		if srv, ok := m.servers[id]; ok && !srv.IsPredefined {
			filtered = append(filtered, id)
		}
	}
	m.order = filtered
	m.persistLocked()
	published := append([]string(nil), filtered...)
	m.mu.Unlock()

	m.emit([]Event{{Type: EventOrderUpdated, Order: published}})
}

// SetLoggedIn updates a server's login state. A transition to logged
// out clears the cached theme and publishes a theme-changed event in
// addition to the login-state event.
func (m *Manager) SetLoggedIn(id string, loggedIn bool) {
	m.mu.Lock()
	srv, ok := m.servers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if !loggedIn {
		srv.Theme = nil
	}
	srv.IsLoggedIn = loggedIn
	m.mu.Unlock()

	events := []Event{{Type: EventLoggedInChanged, ServerID: id, LoggedIn: loggedIn}}
	if !loggedIn {
		events = append(events, Event{Type: EventThemeChanged, ServerID: id})
	}
	m.emit(events)
}

// UpdatePreAuthSecret stores the pre-authentication secret for a
// server.
func (m *Manager) UpdatePreAuthSecret(id, secret string) {
	m.mu.Lock()
	srv, ok := m.servers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	srv.PreAuthSecret = secret
	m.mu.Unlock()

	m.emit([]Event{{Type: EventPreAuthSecretChange, ServerID: id}})
}

// UpdateTheme snapshots the hosted application's theme. Ignored for
// logged-out servers. An absent IsUsingSystemTheme keeps the previous
// value.
func (m *Manager) UpdateTheme(id string, theme Theme) {
	m.mu.Lock()
	srv, ok := m.servers[id]
	if !ok || !srv.IsLoggedIn {
		m.mu.Unlock()
		return
	}
	if theme.IsUsingSystemTheme == nil && srv.Theme != nil {
		theme.IsUsingSystemTheme = srv.Theme.IsUsingSystemTheme
	}
	srv.Theme = &theme
	m.mu.Unlock()

	m.emit([]Event{{Type: EventThemeChanged, ServerID: id}})
}

// Reload removes and re-adds a server in place, preserving its order
// position and currency. Predefined servers are re-inserted directly.
func (m *Manager) Reload(id string) {
	m.mu.RLock()
	srv, ok := m.servers[id]
	if !ok {
		m.mu.RUnlock()
		return
	}
	wasCurrent := m.currentID == id
	originalIndex := -1
	for i, orderedID := range m.order {
		if orderedID == id {
			originalIndex = i
			break
		}
	}
	spec := ServerSpec{Name: srv.Name, URL: srv.URL.String()}
	predefined := srv.IsPredefined
	m.mu.RUnlock()

	if predefined {
		m.mu.Lock()
		fresh := m.newServer(spec, true, nil)
		var events []Event
		if fresh != nil {
			delete(m.servers, id)
			delete(m.remoteInfo, id)
			events = append(events, Event{Type: EventRemoved, ServerID: id})
			events = append(events, m.insertLocked(fresh, wasCurrent))
		}
		m.mu.Unlock()
		m.emit(events)
		return
	}

	m.Remove(id)
	fresh := m.Add(spec, nil)
	if fresh == nil {
		return
	}
	if wasCurrent {
		m.UpdateCurrent(fresh.ID)
	}
	if originalIndex >= 0 {
		m.mu.RLock()
		order := append([]string(nil), m.order...)
		m.mu.RUnlock()
		for i, orderedID := range order {
			if orderedID == fresh.ID && i != originalIndex {
				order = append(order[:i], order[i+1:]...)
				order = append(order[:originalIndex], append([]string{fresh.ID}, order[originalIndex:]...)...)
				m.UpdateServerOrder(order)
				break
			}
		}
	}
}

// newServer builds a Server from a spec with a collision-free id.
// Returns nil when the spec's URL cannot be parsed. Must hold mu.
func (m *Manager) newServer(spec ServerSpec, predefined bool, initialLoadURL *url.URL) *Server {
	parsed, ok := urlutil.Parse(urlutil.Normalize(spec.URL))
	if !ok {
		m.log.Warn("dropping server with unparseable URL", zap.String("name", spec.Name))
		return nil
	}
	id := uuid.New().String()
	for _, exists := m.servers[id]; exists; _, exists = m.servers[id] {
		id = uuid.New().String()
	}
	return &Server{
		ID:             id,
		Name:           spec.Name,
		URL:            parsed,
		IsPredefined:   predefined,
		InitialLoadURL: initialLoadURL,
	}
}

// insertLocked places a server in the map and order, optionally making
// it current. Must hold mu. Returns the creation event for emission
// after unlock.
func (m *Manager) insertLocked(srv *Server, setAsCurrent bool) Event {
	m.log.Debug("registering server", zap.String("serverId", srv.ID), zap.String("name", srv.Name))
	m.servers[srv.ID] = srv
	if !srv.IsPredefined {
		m.order = append(m.order, srv.ID)
	}
	if setAsCurrent {
		m.currentID = srv.ID
	}
	return Event{Type: EventAdded, ServerID: srv.ID, SetAsCurrent: setAsCurrent}
}

// persistLocked writes the user-added servers and current index to the
// store. Persistence failures are logged, not retried: in-memory state
// has already changed. Must hold mu.
func (m *Manager) persistLocked() {
	locals := make([]ServerSpec, 0, len(m.order))
	for _, id := range m.order {
		if srv, ok := m.servers[id]; ok {
			locals = append(locals, ServerSpec{Name: srv.Name, URL: srv.URL.String(), Order: len(locals)})
		}
	}
	currentIndex := -1
	if m.currentID != "" {
		for i, srv := range m.orderedLocked() {
			if srv.ID == m.currentID {
				currentIndex = i
				break
			}
		}
	}
	if err := m.store.SetServers(locals, currentIndex); err != nil {
		m.log.Error("failed to persist servers", zap.Error(err))
	}
}

func (m *Manager) emit(events []Event) {
	for _, e := range events {
		m.bus.Publish(e)
	}
}

// dedupe drops servers whose name and URL duplicate an earlier entry.
func dedupe(list []*Server) []*Server {
	seen := make(map[string]struct{}, len(list))
	out := make([]*Server, 0, len(list))
	for _, srv := range list {
		key := srv.Name + ":" + srv.URL.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, srv)
	}
	return out
}
