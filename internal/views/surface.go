package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/urlutil"
)

// RegistryView is the read-only registry access a surface needs.
type RegistryView interface {
	Get(id string) (*servers.Server, bool)
	RemoteInfo(id string) (*servers.RemoteInfo, bool)
}

// Surface is one embedded content surface for a (server, view) pair.
// It owns the renderer's navigation and the load/retry state machine.
type Surface struct {
	mu sync.Mutex

	id       string
	serverID string

	renderer Renderer
	registry RegistryView
	reach    Reachability
	notifier Notifier
	log      *logging.Logger

	status    Status
	retries   int
	atRoot    bool
	lastPath  string
	destroyed bool

	// retryInterval spaces scheduled retries and background probes.
	retryInterval time.Duration

	// At most one pending retry timer exists per surface; starting a
	// new load cancels it.
	retryTimer *time.Timer
	graceTimer *time.Timer
}

// NewSurface creates a surface in the LOADING state.
func NewSurface(id, serverID string, renderer Renderer, registry RegistryView, reach Reachability, notifier Notifier, log *logging.Logger) *Surface {
	return &Surface{
		id:       id,
		serverID: serverID,
		renderer: renderer,
		registry: registry,
		reach:    reach,
		notifier: notifier,
		log:      log.Named("surface").With(zap.String("surfaceId", id)),
		status:   StatusLoading,
		retries:  MaxServerRetries,
		atRoot:   true,

		retryInterval: ReloadInterval,
	}
}

// ID returns the surface id.
func (s *Surface) ID() string { return s.id }

// ServerID returns the owning server's id.
func (s *Surface) ServerID() string { return s.serverID }

// Status returns the current load state.
func (s *Surface) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsReady reports whether the surface finished loading.
func (s *Surface) IsReady() bool { return s.Status() == StatusReady }

// IsErrored reports whether the surface is in the terminal error state.
func (s *Surface) IsErrored() bool { return s.Status() == StatusError }

// NeedsLoadingScreen reports whether the host should still cover the
// surface with a loading screen.
func (s *Surface) NeedsLoadingScreen() bool {
	status := s.Status()
	return status != StatusReady && status != StatusError
}

// IsAtRoot reports whether navigation history sits at the server's
// home URL.
func (s *Surface) IsAtRoot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atRoot
}

// Load resolves the effective URL and issues the navigation. An empty
// argument loads the server's configured loading URL.
func (s *Surface) Load(rawURL string) {
	loadURL := s.resolveURL(rawURL)
	if loadURL == "" {
		s.log.Error("no URL to load")
		return
	}
	go s.doLoad(loadURL)
}

// Reload resets the load state machine and loads again.
func (s *Surface) Reload(rawURL string) {
	s.resetLoadingStatus()
	s.Load(rawURL)
}

func (s *Surface) resolveURL(rawURL string) string {
	if rawURL != "" {
		if parsed, ok := urlutil.Parse(rawURL); ok {
			return parsed.String()
		}
		s.log.Error("cannot parse provided url, using server url")
	}
	srv, ok := s.registry.Get(s.serverID)
	if !ok {
		return ""
	}
	return srv.LoadingURL().String()
}

// resetLoadingStatus rearms the machine for a fresh load. A surface
// already in LOADING keeps its pending retry untouched.
func (s *Surface) resetLoadingStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusLoading {
		return
	}
	s.cancelRetryLocked()
	s.status = StatusLoading
	s.retries = MaxServerRetries
}

func (s *Surface) doLoad(loadURL string) {
	err := s.renderer.Load(context.Background(), loadURL)

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err == nil {
		s.loadSuccess(loadURL)
		return
	}
	s.handleLoadError(loadURL, err)
}

func (s *Surface) loadSuccess(loadURL string) {
	if !s.remoteVersionSupported() {
		s.mu.Lock()
		s.status = StatusError
		s.mu.Unlock()
		s.log.Info("remote server version is below the supported minimum", zap.String("url", loadURL))
		s.notifier.LoadIncompatible(s.id, loadURL)
		return
	}

	s.mu.Lock()
	s.retries = MaxServerRetries
	s.status = StatusWaitingMM
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(MaxLoadingScreenTime, func() {
		s.SetInitialized(true)
	})
	s.mu.Unlock()

	s.log.Debug("finished loading URL")
	s.notifier.LoadSuccess(s.id, loadURL)
}

// remoteVersionSupported applies the minimum-version gate using cached
// probe data. Unknown or unparseable versions pass.
func (s *Surface) remoteVersionSupported() bool {
	info, ok := s.registry.RemoteInfo(s.serverID)
	if !ok || info.ServerVersion == "" {
		return true
	}
	remote, err := goversion.NewVersion(info.ServerVersion)
	if err != nil {
		return true
	}
	minimum := goversion.Must(goversion.NewVersion(MinSupportedVersion))
	return remote.GreaterThanOrEqual(minimum)
}

func (s *Surface) handleLoadError(loadURL string, err error) {
	kind := LoadErrGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		kind = loadErr.Kind
	}

	switch kind {
	case LoadErrCertificate:
		s.mu.Lock()
		s.status = StatusError
		s.mu.Unlock()
		s.log.Info("invalid certificate, waiting for the user to decide", zap.Error(err))
		s.notifier.LoadFailed(s.id, err.Error(), loadURL)

	case LoadErrAborted:
		// Cancelled on purpose elsewhere; not a failure.

	case LoadErrBlockedByClient:
		// Transient local blocking; retry at once without touching
		// the counter.
		go s.doLoad(loadURL)

	default:
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return
		}
		if s.retries > 0 {
			s.retries--
			s.scheduleRetryLocked(loadURL)
			s.mu.Unlock()
			s.log.Info("failed loading URL, retry scheduled", zap.Error(err))
			s.notifier.LoadRetry(s.id, time.Now().Add(s.retryInterval), err.Error(), loadURL)
			return
		}
		s.status = StatusError
		s.scheduleBackgroundProbeLocked(loadURL)
		s.mu.Unlock()
		s.log.Info("could not establish a connection, continuing to retry in the background", zap.Error(err))
		s.notifier.LoadFailed(s.id, err.Error(), loadURL)
	}
}

// scheduleRetryLocked arms the single retry timer. Must hold mu.
func (s *Surface) scheduleRetryLocked(loadURL string) {
	s.cancelRetryLocked()
	s.retryTimer = time.AfterFunc(s.retryInterval, func() {
		s.mu.Lock()
		dead := s.destroyed
		s.mu.Unlock()
		if dead {
			return
		}
		s.doLoad(loadURL)
	})
}

// scheduleBackgroundProbeLocked arms a lightweight reachability probe
// that replaces itself until the server answers, then performs a full
// reload. Must hold mu.
func (s *Surface) scheduleBackgroundProbeLocked(loadURL string) {
	s.cancelRetryLocked()
	s.retryTimer = time.AfterFunc(s.retryInterval, func() {
		s.mu.Lock()
		dead := s.destroyed
		s.mu.Unlock()
		if dead {
			return
		}
		parsed, ok := urlutil.Parse(loadURL)
		if !ok {
			return
		}
		if err := s.reach.Ping(context.Background(), parsed); err != nil {
			s.log.Debug("cannot reach server", zap.Error(err))
			s.mu.Lock()
			if !s.destroyed {
				s.scheduleBackgroundProbeLocked(loadURL)
			}
			s.mu.Unlock()
			return
		}
		s.Reload(loadURL)
	})
}

func (s *Surface) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// SetInitialized marks the surface READY, either because the hosted
// application signalled readiness or because the grace timer expired.
func (s *Surface) SetInitialized(timedOut bool) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.status = StatusReady
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.mu.Unlock()

	if timedOut {
		s.log.Debug("loading screen timeout expired, showing the surface")
	}
	s.notifier.LoadscreenEnd(s.id)
}

// GoToOffset jumps in navigation history, falling back to a reload
// when the renderer rejects the jump.
func (s *Surface) GoToOffset(offset int) {
	if err := s.renderer.GoToOffset(offset); err != nil {
		s.log.Error("history jump failed", zap.Error(err))
		s.Reload("")
		return
	}
	s.UpdateHistoryStatus()
}

// HistoryStatus recomputes back/forward availability. Arriving at the
// server's loading URL clears history and marks the surface at root.
func (s *Surface) HistoryStatus() (canGoBack, canGoForward bool) {
	atRoot := false
	if srv, ok := s.registry.Get(s.serverID); ok {
		current, currentOK := urlutil.Parse(s.renderer.CurrentURL())
		if currentOK && current.String() == srv.LoadingURL().String() {
			s.renderer.ClearHistory()
			atRoot = true
		}
	}
	s.mu.Lock()
	s.atRoot = atRoot
	s.mu.Unlock()
	return s.renderer.CanGoBack(), s.renderer.CanGoForward()
}

// UpdateHistoryStatus recomputes and pushes history availability to
// the hosted content and listeners.
func (s *Surface) UpdateHistoryStatus() {
	canGoBack, canGoForward := s.HistoryStatus()
	s.notifier.HistoryStatus(s.id, canGoBack, canGoForward)
}

// SetLastPath remembers the last visited path for restoration across
// reloads.
func (s *Surface) SetLastPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPath = path
}

// UseLastPath pushes the remembered path into the hosted content and
// forgets it.
func (s *Surface) UseLastPath() {
	s.mu.Lock()
	path := s.lastPath
	s.lastPath = ""
	s.mu.Unlock()
	if path == "" {
		return
	}
	s.renderer.Send("browser-history-push", path)
}

// HandleTitleUpdated post-processes the hosted page's title before it
// reaches the window chrome. Logged-out servers keep the chrome title
// unchanged.
func (s *Surface) HandleTitleUpdated(rawTitle string) {
	srv, ok := s.registry.Get(s.serverID)
	if !ok || !srv.IsLoggedIn {
		return
	}
	siteName := ""
	if info, ok := s.registry.RemoteInfo(s.serverID); ok {
		siteName = info.SiteName
	}
	s.notifier.TitleUpdated(s.id, CleanTitle(rawTitle, siteName))
}

// ReadLocalValue evaluates a scoped read of the hosted page's local
// storage. It is the capability the session bridge uses for token
// relay.
func (s *Surface) ReadLocalValue(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	dead := s.destroyed
	s.mu.Unlock()
	if dead || s.renderer.IsDestroyed() {
		return "", fmt.Errorf("surface %s is destroyed", s.id)
	}
	return s.renderer.EvaluateScript(ctx, fmt.Sprintf("localStorage.getItem(%q)", key))
}

// IsDestroyed reports whether the surface has been torn down.
func (s *Surface) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Destroy tears the surface down, synchronously cancelling any pending
// retry and grace timers. Later-arriving completions are dropped.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.cancelRetryLocked()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.mu.Unlock()

	s.renderer.Close()
}
