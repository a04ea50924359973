package probe

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/deskshell/deskshell/internal/servers"
)

// Prober confirms that a URL hosts a compatible remote application and
// extracts its advertised identity.
type Prober interface {
	// TestRemote pings the candidate and fetches its client
	// configuration. Failures carry a *RemoteError in the chain so
	// callers can classify auth gates.
	TestRemote(ctx context.Context, base *url.URL) (*servers.RemoteInfo, error)
}

// Recorder observes probe round-trips.
type Recorder interface {
	RecordProbe(endpoint, outcome string, duration time.Duration)
}

// RemoteProber probes real servers over HTTP.
type RemoteProber struct {
	client   *resty.Client
	recorder Recorder
}

// NewRemoteProber creates a prober with the default HTTP client.
func NewRemoteProber() *RemoteProber {
	return &RemoteProber{client: newRestyClient()}
}

// WithRecorder returns a prober that reports round-trips to rec.
func (p *RemoteProber) WithRecorder(rec Recorder) *RemoteProber {
	return &RemoteProber{client: p.client, recorder: rec}
}

// WithPreAuthSecret returns a prober that sends the pre-auth secret on
// every request.
func (p *RemoteProber) WithPreAuthSecret(secret string) *RemoteProber {
	client := newRestyClient()
	if secret != "" {
		client.SetHeader(PreAuthHeader, secret)
	}
	return &RemoteProber{client: client, recorder: p.recorder}
}

func (p *RemoteProber) record(endpoint string, start time.Time, err error) {
	if p.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.recorder.RecordProbe(endpoint, outcome, time.Since(start))
}

// clientConfig is the subset of the remote's advertised client
// configuration the core cares about.
type clientConfig struct {
	SiteName string `json:"SiteName"`
	Version  string `json:"Version"`
	SiteURL  string `json:"SiteURL"`
}

// Ping checks basic reachability. The ping endpoint may be whitelisted
// behind a pre-auth gate where the config endpoint is not, so it runs
// first.
func (p *RemoteProber) Ping(ctx context.Context, base *url.URL) (err error) {
	start := time.Now()
	defer func() { p.record("ping", start, err) }()
	resp, err := p.client.R().SetContext(ctx).Get(joinPath(base, pingPath))
	if err != nil {
		return &RemoteError{Err: err}
	}
	if resp.StatusCode() != 200 {
		return &RemoteError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// FetchClientConfig retrieves the remote's advertised identity.
func (p *RemoteProber) FetchClientConfig(ctx context.Context, base *url.URL) (info *servers.RemoteInfo, err error) {
	start := time.Now()
	defer func() { p.record("client_config", start, err) }()
	var cfg clientConfig
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("format", "old").
		SetResult(&cfg).
		Get(joinPath(base, configPath))
	if err != nil {
		return nil, &RemoteError{Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &RemoteError{StatusCode: resp.StatusCode()}
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("remote did not advertise a server version")
	}
	return &servers.RemoteInfo{
		SiteName:      cfg.SiteName,
		ServerVersion: cfg.Version,
		SiteURL:       cfg.SiteURL,
	}, nil
}

// TestRemote implements Prober.
func (p *RemoteProber) TestRemote(ctx context.Context, base *url.URL) (*servers.RemoteInfo, error) {
	if err := p.Ping(ctx, base); err != nil {
		return nil, err
	}
	return p.FetchClientConfig(ctx, base)
}

func joinPath(base *url.URL, path string) string {
	return strings.TrimSuffix(base.String(), "/") + path
}
