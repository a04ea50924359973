package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/views"
)

const (
	tokenStorageKey = "auth_token"
	userInfoPath    = "/api/user"
	handoffTimeout  = 5 * time.Second
)

// CookieStore answers whether a session cookie already exists for a
// server origin. The desktop shell backs this with the engine's cookie
// jar.
type CookieStore interface {
	HasSessionCookie(ctx context.Context, base *url.URL) (bool, error)
}

// Bridge mediates session hand-off between hosted applications: when
// the user jumps from one app to another, it relays the signed-in
// identity so the target can prefill its login instead of starting
// cold.
type Bridge struct {
	registry *servers.Manager
	surfaces *views.Manager
	cookies  CookieStore
	client   *resty.Client
	log      *logging.Logger
}

// New creates a session bridge.
func New(registry *servers.Manager, surfaces *views.Manager, cookies CookieStore, log *logging.Logger) *Bridge {
	client := resty.New().
		SetTimeout(handoffTimeout).
		SetHeader("User-Agent", "deskshell/1.0")
	return &Bridge{
		registry: registry,
		surfaces: surfaces,
		cookies:  cookies,
		client:   client,
		log:      log.Named("bridge"),
	}
}

// ErrUnknownServer is returned for switch requests naming a server id
// that is not in the registry.
var ErrUnknownServer = errors.New("unknown server")

// SwitchServer makes the given server current and attempts a
// best-effort single-sign-on hand-off from the outgoing one. Every
// hand-off failure is swallowed: the switch itself always goes through
// and the target simply shows its normal login.
func (b *Bridge) SwitchServer(ctx context.Context, serverID string) error {
	target, ok := b.registry.Get(serverID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}

	sourceSurface, _ := b.surfaces.Current()
	b.registry.UpdateCurrent(serverID)

	if sourceSurface == nil || sourceSurface.ServerID() == serverID {
		return nil
	}
	b.handoff(ctx, sourceSurface, target)
	return nil
}

// ActiveAppName returns the display name of the current server, or
// the empty string when none is selected.
func (b *Bridge) ActiveAppName() string {
	currentID := b.registry.CurrentID()
	if currentID == "" {
		return ""
	}
	srv, ok := b.registry.Get(currentID)
	if !ok {
		return ""
	}
	return srv.Name
}

// SwitchApp toggles to the other configured application. An explicit
// target id wins when given; otherwise the first server that is not
// current is picked. With fewer than two servers the toggle is a
// logged no-op.
func (b *Bridge) SwitchApp(ctx context.Context, targetID string) error {
	if targetID == "" {
		targetID = b.otherServerID()
		if targetID == "" {
			b.log.Warn("app switch requested with fewer than two servers configured")
			return nil
		}
	}
	return b.SwitchServer(ctx, targetID)
}

// otherServerID returns the first ordered server that is not current,
// or the empty string when there is none.
func (b *Bridge) otherServerID() string {
	current := b.registry.CurrentID()
	for _, srv := range b.registry.Ordered() {
		if srv.ID != current {
			return srv.ID
		}
	}
	return ""
}

// handoff relays the source session to the target: read the source
// app's bearer token, resolve the account email with it, and navigate
// the target surface to an email-prefilled login. A target that
// already holds a session cookie is left alone.
func (b *Bridge) handoff(ctx context.Context, source *views.Surface, target *servers.Server) {
	ctx, cancel := context.WithTimeout(ctx, handoffTimeout)
	defer cancel()

	hasSession, err := b.cookies.HasSessionCookie(ctx, target.URL)
	if err != nil {
		b.log.Debug("session cookie check failed", zap.Error(err))
		return
	}
	if hasSession {
		return
	}

	token, err := source.ReadLocalValue(ctx, tokenStorageKey)
	if err != nil || token == "" || token == "null" {
		b.log.Debug("no session token available for hand-off", zap.Error(err))
		return
	}

	srcServer, ok := b.registry.Get(source.ServerID())
	if !ok {
		return
	}
	email, err := b.fetchEmail(ctx, srcServer.URL, token)
	if err != nil || email == "" {
		b.log.Debug("could not resolve account email", zap.Error(err))
		return
	}

	targetSurface, ok := b.surfaces.ForServer(target.ID)
	if !ok {
		return
	}
	targetSurface.Load(loginDeepLink(target.URL, email))
	b.log.Info("session hand-off issued",
		zap.String("sourceServerId", source.ServerID()),
		zap.String("targetServerId", target.ID))
}

type userInfo struct {
	Email string `json:"email"`
}

// fetchEmail asks the source server who the token belongs to.
func (b *Bridge) fetchEmail(ctx context.Context, base *url.URL, token string) (string, error) {
	var info userInfo
	resp, err := b.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&info).
		Get(base.JoinPath(userInfoPath).String())
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("user info request failed: %s", resp.Status())
	}
	return info.Email, nil
}

// loginDeepLink builds the email-prefilled login URL on the target.
func loginDeepLink(base *url.URL, email string) string {
	login := base.JoinPath("/login")
	q := login.Query()
	q.Set("extra", "email_login")
	q.Set("email", email)
	login.RawQuery = q.Encode()
	return login.String()
}
