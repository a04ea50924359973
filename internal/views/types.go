// Package views owns the embedded content surfaces that render each
// server, including their load/retry state machine.
package views

import (
	"context"
	"net/url"
	"time"
)

// Load state machine: LOADING -> READY, LOADING -> WAITING_MM ->
// READY (immediately on confirmation or when the grace timer fires),
// LOADING -> ERROR (terminal until an explicit reload).
type Status int

const (
	StatusError   Status = -1
	StatusLoading Status = 0
	StatusReady   Status = 1
	// StatusWaitingMM means the network load finished but the hosted
	// application has not yet signalled client-side readiness.
	StatusWaitingMM Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusWaitingMM:
		return "waiting"
	default:
		return "unknown"
	}
}

const (
	// ReloadInterval is the fixed delay between scheduled retries and
	// background reachability probes.
	ReloadInterval = 10 * time.Second
	// MaxServerRetries bounds scheduled full-load retries before the
	// surface goes to ERROR and falls back to background probing.
	MaxServerRetries = 3
	// MaxLoadingScreenTime is the ceiling on WAITING_MM before the
	// surface is forced READY without the hosted app's signal.
	MaxLoadingScreenTime = 4 * time.Second
	// MinSupportedVersion is the oldest remote server version the
	// shell will render.
	MinSupportedVersion = "9.4.0"
)

// LoadErrorKind classifies a failed navigation.
type LoadErrorKind int

const (
	// LoadErrGeneric covers network failures eligible for scheduled
	// retry.
	LoadErrGeneric LoadErrorKind = iota
	// LoadErrCertificate is terminal until the user decides what to do.
	LoadErrCertificate
	// LoadErrAborted means the navigation was cancelled on purpose.
	LoadErrAborted
	// LoadErrBlockedByClient is a transient local block, retried
	// immediately.
	LoadErrBlockedByClient
)

// LoadError is a navigation failure with its retry classification.
type LoadError struct {
	Kind LoadErrorKind
	Err  error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Renderer abstracts the embedded content-rendering unit. The window
// host provides the real implementation; tests provide fakes.
type Renderer interface {
	Load(ctx context.Context, url string) error
	CurrentURL() string
	CanGoBack() bool
	CanGoForward() bool
	GoToOffset(offset int) error
	ClearHistory()
	// Send delivers a message to the hosted content.
	Send(channel string, args ...any)
	// EvaluateScript runs a scoped in-page expression and returns its
	// string result.
	EvaluateScript(ctx context.Context, expr string) (string, error)
	IsDestroyed() bool
	Close()
}

// RendererFactory creates one renderer per surface.
type RendererFactory func(surfaceID string) Renderer

// Notifier receives surface lifecycle notifications for the hosting
// window and any external listener.
type Notifier interface {
	LoadSuccess(surfaceID, url string)
	LoadFailed(surfaceID, errMsg, url string)
	LoadRetry(surfaceID string, at time.Time, errMsg, url string)
	LoadIncompatible(surfaceID, url string)
	LoadscreenEnd(surfaceID string)
	HistoryStatus(surfaceID string, canGoBack, canGoForward bool)
	TitleUpdated(surfaceID, title string)
}

// Reachability is the lightweight probe used while a surface is in
// background retry, distinct from a full page load.
type Reachability interface {
	Ping(ctx context.Context, base *url.URL) error
}
