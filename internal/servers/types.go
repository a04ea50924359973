// Package servers owns the configured server set: identity, order,
// the current selection, and cached remote identity data.
package servers

import "net/url"

// ServerSpec is the persisted shape of a configured server.
type ServerSpec struct {
	Name  string
	URL   string
	Order int
}

// Server is a configured remote endpoint.
type Server struct {
	ID            string
	Name          string
	URL           *url.URL
	IsPredefined  bool
	IsLoggedIn    bool
	Theme         *Theme
	PreAuthSecret string

	// InitialLoadURL overrides the first navigation target, used when
	// a server is added from a pasted deep link.
	InitialLoadURL *url.URL
}

// LoadingURL returns the URL a fresh surface should navigate to.
func (s *Server) LoadingURL() *url.URL {
	if s.InitialLoadURL != nil {
		return s.InitialLoadURL
	}
	return s.URL
}

// ToUnique converts to the wire representation handed to the UI.
func (s *Server) ToUnique() UniqueServer {
	return UniqueServer{
		ID:           s.ID,
		Name:         s.Name,
		URL:          s.URL.String(),
		IsPredefined: s.IsPredefined,
		IsLoggedIn:   s.IsLoggedIn,
	}
}

// UniqueServer is the JSON shape of a server at the RPC boundary.
type UniqueServer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	IsPredefined bool   `json:"isPredefined"`
	IsLoggedIn   bool   `json:"isLoggedIn"`
}

// Theme is the snapshot of the hosted application's theme, cleared on
// logout.
type Theme struct {
	Colors             map[string]string `json:"colors"`
	IsUsingSystemTheme *bool             `json:"isUsingSystemTheme,omitempty"`
}

// RemoteInfo is the cached result of probing a server. Replaced
// wholesale on each successful probe.
type RemoteInfo struct {
	SiteName      string `json:"siteName"`
	ServerVersion string `json:"serverVersion"`
	SiteURL       string `json:"siteURL"`
}

// ConfigStore is the durable store the registry persists to.
type ConfigStore interface {
	PredefinedServers() []ServerSpec
	LocalServers() []ServerSpec
	EnableServerManagement() bool
	SetServers(list []ServerSpec, currentIndex int) error
}
