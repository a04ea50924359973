package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/api"
	"github.com/deskshell/deskshell/internal/bridge"
	"github.com/deskshell/deskshell/internal/config"
	"github.com/deskshell/deskshell/internal/crash"
	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/monitoring"
	"github.com/deskshell/deskshell/internal/probe"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/store"
	"github.com/deskshell/deskshell/internal/views"
)

// Options carries the host-provided implementations. Every field is
// optional: a missing renderer factory falls back to headless mode, a
// missing cookie store reports no sessions, a missing dialog skips the
// crash dialog.
type Options struct {
	RendererFactory views.RendererFactory
	CookieStore     bridge.CookieStore
	CrashDialog     crash.Dialog
	CrashReportDir  string
}

// Server wires the store, registry, probe, surfaces, bridge and RPC
// boundary together.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	router   *gin.Engine
	httpSrv  *http.Server
	store    *store.FileStore
	registry *servers.Manager
	prober   *probe.RemoteProber
	surfaces *views.Manager
	bridge   *bridge.Bridge
	crash    *crash.Handler
	metrics  *monitoring.Metrics
	stream   *api.Stream
}

// noSessionCookies is the cookie store used when no engine jar is
// wired in. It reports no sessions, so hand-off always proceeds.
type noSessionCookies struct{}

func (noSessionCookies) HasSessionCookie(ctx context.Context, _ *url.URL) (bool, error) {
	return false, nil
}

// NewServer creates a fully wired server instance.
func NewServer(cfg *config.Config, log *logging.Logger, opts Options) (*Server, error) {
	fileStore := store.NewFileStore(
		cfg.Servers.ConfigFile,
		cfg.Servers.PredefinedFile,
		cfg.Servers.EnableServerManagement,
		log,
	)
	if err := fileStore.Load(); err != nil {
		return nil, err
	}

	registry := servers.NewManager(fileStore, log)
	registry.Init()

	metrics := monitoring.NewMetrics()
	metrics.SetRegistryServers(len(registry.All()))
	registry.Events().SubscribeAll(func(ev servers.Event) {
		metrics.RecordRegistryEvent(string(ev.Type))
		metrics.SetRegistryServers(len(registry.All()))
	})

	stream := api.NewStream(registry.Events(), metrics, log)
	notifier := newStreamNotifier(stream, metrics, log)

	prober := probe.NewRemoteProber().WithRecorder(metrics)

	factory := opts.RendererFactory
	if factory == nil {
		factory = newHeadlessFactory(prober)
	}
	surfaces := views.NewManager(registry, factory, prober, notifier, log)
	surfaces.Init()

	cookies := opts.CookieStore
	if cookies == nil {
		cookies = noSessionCookies{}
	}
	br := bridge.New(registry, surfaces, cookies, log)

	reportDir := opts.CrashReportDir
	if reportDir == "" {
		reportDir = "crash-reports"
	}
	crashHandler := crash.NewHandler(reportDir, opts.CrashDialog, nil, nil, log)

	s := &Server{
		cfg:      cfg,
		log:      log.Named("server"),
		store:    fileStore,
		registry: registry,
		prober:   prober,
		surfaces: surfaces,
		bridge:   br,
		crash:    crashHandler,
		metrics:  metrics,
		stream:   stream,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.Instrument(s.metrics))
	router.Use(api.CORS())
	if s.cfg.RateLimit.Enabled {
		router.Use(api.RateLimit(s.cfg.RateLimit))
	}

	handlers := api.NewHandlers(s.registry, s.prober, s.bridge, s.surfaces, s.cfg.Servers.WindowStateFile, s.log)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", s.stream.HandleConnection)

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

	router.GET("/surfaces/:id/status", handlers.GetSurfaceStatus)

	router.GET("/window/state", handlers.GetWindowState)
	router.PUT("/window/state", handlers.SaveWindowState)

	return router
}

// Registry exposes the server registry for the embedding host.
func (s *Server) Registry() *servers.Manager { return s.registry }

// Surfaces exposes the surface manager for the embedding host.
func (s *Server) Surfaces() *views.Manager { return s.surfaces }

// Crash exposes the crash handler for the embedding host.
func (s *Server) Crash() *crash.Handler { return s.crash }

// Run starts the RPC listener and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the listener down gracefully and destroys every surface.
func (s *Server) Close() error {
	for _, surface := range s.surfaces.All() {
		surface.Destroy()
	}

	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
