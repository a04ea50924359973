package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/deskshell/deskshell/internal/urlutil"
	"github.com/deskshell/deskshell/internal/views"
)

// headlessRenderer backs surfaces when no embedding engine is wired
// in: navigation is a reachability check and history is tracked
// locally. It keeps the full state machine exercisable without a
// window host.
type headlessRenderer struct {
	reach views.Reachability

	mu        sync.Mutex
	history   []string
	index     int
	destroyed bool
}

func newHeadlessFactory(reach views.Reachability) views.RendererFactory {
	return func(surfaceID string) views.Renderer {
		return &headlessRenderer{reach: reach, index: -1}
	}
}

func (r *headlessRenderer) Load(ctx context.Context, rawURL string) error {
	parsed, ok := urlutil.Parse(rawURL)
	if !ok {
		return &views.LoadError{Kind: views.LoadErrGeneric, Err: fmt.Errorf("unparseable url %q", rawURL)}
	}
	if err := r.reach.Ping(ctx, parsed); err != nil {
		return &views.LoadError{Kind: views.LoadErrGeneric, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return &views.LoadError{Kind: views.LoadErrAborted, Err: fmt.Errorf("renderer destroyed")}
	}
	r.history = append(r.history[:r.index+1], parsed.String())
	r.index = len(r.history) - 1
	return nil
}

func (r *headlessRenderer) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index < 0 {
		return ""
	}
	return r.history[r.index]
}

func (r *headlessRenderer) CanGoBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index > 0
}

func (r *headlessRenderer) CanGoForward() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index >= 0 && r.index < len(r.history)-1
}

func (r *headlessRenderer) GoToOffset(offset int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.index + offset
	if target < 0 || target >= len(r.history) {
		return fmt.Errorf("history offset %d out of range", offset)
	}
	r.index = target
	return nil
}

func (r *headlessRenderer) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index < 0 {
		return
	}
	r.history = []string{r.history[r.index]}
	r.index = 0
}

func (r *headlessRenderer) Send(channel string, args ...any) {}

func (r *headlessRenderer) EvaluateScript(ctx context.Context, expr string) (string, error) {
	return "", fmt.Errorf("no script host in headless mode")
}

func (r *headlessRenderer) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func (r *headlessRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
}
