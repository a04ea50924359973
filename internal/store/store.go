// Package store owns the durable configuration files: the versioned
// server list, the fleet-provisioned predefined servers, and the saved
// window state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
)

// CurrentVersion is the schema version written to disk.
const CurrentVersion = 1

// configFile is the on-disk shape of the versioned server list.
type configFile struct {
	Version          int            `json:"version"`
	Servers          []configServer `json:"servers"`
	LastActiveServer int            `json:"lastActiveServer"`
}

type configServer struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// legacyConfig is the pre-versioning single-server shape. It is
// accepted on load and rewritten as the current schema.
type legacyConfig struct {
	URL string `json:"url"`
}

// legacyServerName is the display name assigned to a migrated
// single-server config entry.
const legacyServerName = "Primary server"

// FileStore implements servers.ConfigStore on top of JSON files.
type FileStore struct {
	mu               sync.Mutex
	path             string
	predefinedPath   string
	enableManagement bool
	local            []servers.ServerSpec
	predefined       []servers.ServerSpec
	lastActive       int
	log              *logging.Logger
}

// NewFileStore creates a store for the given paths. Call Load before
// first use.
func NewFileStore(path, predefinedPath string, enableManagement bool, log *logging.Logger) *FileStore {
	return &FileStore{
		path:             path,
		predefinedPath:   predefinedPath,
		enableManagement: enableManagement,
		log:              log.Named("store"),
	}
}

// Load reads the config file, migrating a legacy shape to the current
// versioned schema and rewriting it on disk. A missing file is an
// empty config, not an error.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadPredefined(); err != nil {
		return err
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.local = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg configFile
	if err := json.Unmarshal(raw, &cfg); err == nil && cfg.Version >= CurrentVersion {
		s.local = make([]servers.ServerSpec, 0, len(cfg.Servers))
		for _, srv := range cfg.Servers {
			s.local = append(s.local, servers.ServerSpec{Name: srv.Name, URL: srv.URL, Order: srv.Order})
		}
		s.lastActive = cfg.LastActiveServer
		return nil
	}

	// Legacy single-server shape.
	var legacy legacyConfig
	if err := json.Unmarshal(raw, &legacy); err != nil || legacy.URL == "" {
		return fmt.Errorf("unrecognized config format in %s", s.path)
	}
	s.log.Info("migrating legacy config", zap.String("path", s.path))
	s.local = []servers.ServerSpec{{Name: legacyServerName, URL: legacy.URL}}
	s.lastActive = 0
	return s.write()
}

func (s *FileStore) loadPredefined() error {
	s.predefined = nil
	if s.predefinedPath == "" {
		return nil
	}
	raw, err := os.ReadFile(s.predefinedPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read predefined servers: %w", err)
	}
	var cfg configFile
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("failed to parse predefined servers: %w", err)
	}
	for _, srv := range cfg.Servers {
		s.predefined = append(s.predefined, servers.ServerSpec{Name: srv.Name, URL: srv.URL, Order: srv.Order})
	}
	return nil
}

// LocalServers returns the user-added servers read from disk.
func (s *FileStore) LocalServers() []servers.ServerSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]servers.ServerSpec(nil), s.local...)
}

// PredefinedServers returns the fleet-provisioned servers.
func (s *FileStore) PredefinedServers() []servers.ServerSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]servers.ServerSpec(nil), s.predefined...)
}

// EnableServerManagement reports whether servers may be added or
// removed in this deployment.
func (s *FileStore) EnableServerManagement() bool {
	return s.enableManagement
}

// LastActiveServer returns the persisted index of the current server
// within the ordered list.
func (s *FileStore) LastActiveServer() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SetServers replaces the persisted server list. currentIndex is the
// position of the current server in the ordered list, or -1 when no
// server is current.
func (s *FileStore) SetServers(list []servers.ServerSpec, currentIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = append([]servers.ServerSpec(nil), list...)
	if currentIndex >= 0 {
		s.lastActive = currentIndex
	}
	return s.write()
}

func (s *FileStore) write() error {
	cfg := configFile{
		Version:          CurrentVersion,
		Servers:          make([]configServer, 0, len(s.local)),
		LastActiveServer: s.lastActive,
	}
	for _, srv := range s.local {
		cfg.Servers = append(cfg.Servers, configServer{Name: srv.Name, URL: srv.URL, Order: srv.Order})
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
