package views

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
)

// Manager owns one content surface per registered server and keeps the
// set aligned with registry changes: additions create surfaces, URL
// edits reload them, removals destroy them.
type Manager struct {
	mu sync.RWMutex

	registry *servers.Manager
	factory  RendererFactory
	reach    Reachability
	notifier Notifier
	log      *logging.Logger

	surfaces map[string]*Surface // surface id -> surface
	byServer map[string]string   // server id -> surface id
}

// NewManager creates a surface manager over the given registry.
func NewManager(registry *servers.Manager, factory RendererFactory, reach Reachability, notifier Notifier, log *logging.Logger) *Manager {
	return &Manager{
		registry: registry,
		factory:  factory,
		reach:    reach,
		notifier: notifier,
		log:      log.Named("views"),
		surfaces: make(map[string]*Surface),
		byServer: make(map[string]string),
	}
}

// Init creates surfaces for every server already in the registry and
// subscribes to registry events for the rest of the process lifetime.
func (m *Manager) Init() {
	for _, srv := range m.registry.All() {
		m.createSurface(srv.ID)
	}

	bus := m.registry.Events()
	bus.Subscribe(servers.EventAdded, m.onServerAdded)
	bus.Subscribe(servers.EventRemoved, m.onServerRemoved)
	bus.Subscribe(servers.EventURLChanged, m.onServerURLChanged)
}

// Get returns the surface with the given id.
func (m *Manager) Get(surfaceID string) (*Surface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surfaces[surfaceID]
	return s, ok
}

// ForServer returns the surface owned by the given server.
func (m *Manager) ForServer(serverID string) (*Surface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	surfaceID, ok := m.byServer[serverID]
	if !ok {
		return nil, false
	}
	s, ok := m.surfaces[surfaceID]
	return s, ok
}

// Current returns the surface for the registry's current server.
func (m *Manager) Current() (*Surface, bool) {
	currentID := m.registry.CurrentID()
	if currentID == "" {
		return nil, false
	}
	return m.ForServer(currentID)
}

// All returns a snapshot of every live surface.
func (m *Manager) All() []*Surface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Surface, 0, len(m.surfaces))
	for _, s := range m.surfaces {
		result = append(result, s)
	}
	return result
}

func (m *Manager) createSurface(serverID string) *Surface {
	surfaceID := uuid.NewString()
	renderer := m.factory(surfaceID)
	surface := NewSurface(surfaceID, serverID, renderer, m.registry, m.reach, m.notifier, m.log)

	m.mu.Lock()
	m.surfaces[surfaceID] = surface
	m.byServer[serverID] = surfaceID
	m.mu.Unlock()

	m.log.Debug("surface created",
		zap.String("surfaceId", surfaceID),
		zap.String("serverId", serverID))

	surface.Load("")
	return surface
}

func (m *Manager) onServerAdded(ev servers.Event) {
	if _, exists := m.ForServer(ev.ServerID); exists {
		return
	}
	m.createSurface(ev.ServerID)
}

func (m *Manager) onServerRemoved(ev servers.Event) {
	m.mu.Lock()
	surfaceID, ok := m.byServer[ev.ServerID]
	var surface *Surface
	if ok {
		surface = m.surfaces[surfaceID]
		delete(m.surfaces, surfaceID)
		delete(m.byServer, ev.ServerID)
	}
	m.mu.Unlock()

	if surface != nil {
		surface.Destroy()
		m.log.Debug("surface destroyed", zap.String("serverId", ev.ServerID))
	}
}

func (m *Manager) onServerURLChanged(ev servers.Event) {
	surface, ok := m.ForServer(ev.ServerID)
	if !ok {
		return
	}
	surface.Reload("")
}
