package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/bridge"
	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/probe"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/store"
	"github.com/deskshell/deskshell/internal/views"
)

// Handlers holds the RPC boundary's dependencies.
type Handlers struct {
	registry        *servers.Manager
	prober          *probe.RemoteProber
	bridge          *bridge.Bridge
	surfaces        *views.Manager
	windowStatePath string
	log             *logging.Logger
}

// NewHandlers creates the RPC handlers.
func NewHandlers(registry *servers.Manager, prober *probe.RemoteProber, br *bridge.Bridge, surfaces *views.Manager, windowStatePath string, log *logging.Logger) *Handlers {
	return &Handlers{
		registry:        registry,
		prober:          prober,
		bridge:          br,
		surfaces:        surfaces,
		windowStatePath: windowStatePath,
		log:             log.Named("api"),
	}
}

// ValidateServer runs the full validation procedure against a
// candidate URL
func (h *Handlers) ValidateServer(c *gin.Context) {
	var req struct {
		URL           string `json:"url"`
		CurrentID     string `json:"currentId"`
		PreAuthSecret string `json:"preAuthSecret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	prober := probe.Prober(h.prober)
	if req.PreAuthSecret != "" {
		prober = h.prober.WithPreAuthSecret(req.PreAuthSecret)
	}
	validator := probe.NewValidator(h.registry, prober, h.log)
	result := validator.Validate(c.Request.Context(), req.URL, req.CurrentID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

// GetOrderedServers returns all servers in display order
func (h *Handlers) GetOrderedServers(c *gin.Context) {
	ordered := h.registry.Ordered()
	list := make([]servers.UniqueServer, 0, len(ordered))
	for _, srv := range ordered {
		list = append(list, srv.ToUnique())
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"servers":   list,
		"currentId": h.registry.CurrentID(),
	})
}

// UpdateServerOrder reorders the user-added servers
func (h *Handlers) UpdateServerOrder(c *gin.Context) {
	var req struct {
		Order []string `json:"order" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	h.registry.UpdateServerOrder(req.Order)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddServer creates a new server
func (h *Handlers) AddServer(c *gin.Context) {
	var req struct {
		Name          string `json:"name" binding:"required"`
		URL           string `json:"url" binding:"required"`
		PreAuthSecret string `json:"preAuthSecret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	srv := h.registry.Add(servers.ServerSpec{Name: req.Name, URL: req.URL}, nil)
	if srv == nil {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "server management is disabled",
		})
		return
	}
	if req.PreAuthSecret != "" {
		h.registry.UpdatePreAuthSecret(srv.ID, req.PreAuthSecret)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"server":  srv.ToUnique(),
	})
}

// EditServer updates a server's name and URL
func (h *Handlers) EditServer(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		URL  string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	srv := h.registry.Edit(c.Param("id"), servers.ServerSpec{Name: req.Name, URL: req.URL})
	if srv == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "server not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"server":  srv.ToUnique(),
	})
}

// RemoveServer deletes a server
func (h *Handlers) RemoveServer(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.registry.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "server not found",
		})
		return
	}

	h.registry.Remove(id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetCurrentServer returns the currently selected server
func (h *Handlers) GetCurrentServer(c *gin.Context) {
	currentID := h.registry.CurrentID()
	srv, ok := h.registry.Get(currentID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"server":  nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"server":  srv.ToUnique(),
	})
}

// SwitchServer makes a server current
func (h *Handlers) SwitchServer(c *gin.Context) {
	if err := h.bridge.SwitchServer(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SwitchApp toggles to the other hosted application with session
// hand-off. An optional body may name an explicit target.
func (h *Handlers) SwitchApp(c *gin.Context) {
	var req struct {
		ServerID string `json:"serverId"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request: " + err.Error(),
			})
			return
		}
	}

	if err := h.bridge.SwitchApp(c.Request.Context(), req.ServerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetActiveApp returns the display name of the active application
func (h *Handlers) GetActiveApp(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    h.bridge.ActiveAppName(),
	})
}

// GetSurfaceStatus reports a surface's load state for the loading screen
func (h *Handlers) GetSurfaceStatus(c *gin.Context) {
	surface, ok := h.surfaces.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "surface not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"status":             surface.Status().String(),
		"needsLoadingScreen": surface.NeedsLoadingScreen(),
		"atRoot":             surface.IsAtRoot(),
	})
}

// GetWindowState returns the saved window geometry for the window host
func (h *Handlers) GetWindowState(c *gin.Context) {
	state, err := store.LoadWindowState(h.windowStatePath)
	if err != nil {
		h.log.Warn("discarding unreadable window state", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   state,
	})
}

// SaveWindowState persists window geometry reported by the window host
func (h *Handlers) SaveWindowState(c *gin.Context) {
	var state store.WindowState
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := store.SaveWindowState(h.windowStatePath, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health returns liveness for the window host
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"hasServers": h.registry.HasServers(),
	})
}
