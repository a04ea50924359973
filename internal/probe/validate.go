package probe

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/servers"
	"github.com/deskshell/deskshell/internal/urlutil"
)

// Status classifies the outcome of validating a candidate server URL.
type Status string

const (
	StatusMissing            Status = "Missing"
	StatusInvalid            Status = "Invalid"
	StatusURLExists          Status = "URLExists"
	StatusPreAuthRequired    Status = "PreAuthRequired"
	StatusBasicAuthRequired  Status = "BasicAuthRequired"
	StatusClientCertRequired Status = "ClientCertRequired"
	StatusNotMattermost      Status = "NotMattermost"
	StatusInsecure           Status = "Insecure"
	StatusURLNotMatched      Status = "URLNotMatched"
	StatusURLUpdated         Status = "URLUpdated"
	StatusOK                 Status = "OK"
)

// Result is the outcome of URL validation, optionally carrying the
// validated URL and detected server identity.
type Result struct {
	Status             Status `json:"status"`
	ValidatedURL       string `json:"validatedURL,omitempty"`
	ServerName         string `json:"serverName,omitempty"`
	ServerVersion      string `json:"serverVersion,omitempty"`
	ExistingServerName string `json:"existingServerName,omitempty"`
}

// ServerLookup is the registry view the validator needs.
type ServerLookup interface {
	LookupByURL(candidate *url.URL, ignoreScheme bool) (*servers.Server, bool)
}

// Validator runs the full ordered validation procedure against a
// candidate URL.
type Validator struct {
	lookup ServerLookup
	prober Prober
	log    *logging.Logger
}

// NewValidator creates a validator over the given registry view and
// prober.
func NewValidator(lookup ServerLookup, prober Prober, log *logging.Logger) *Validator {
	return &Validator{
		lookup: lookup,
		prober: prober,
		log:    log.Named("validator"),
	}
}

// Validate checks a candidate URL, first-match-wins: missing, invalid,
// already configured, auth-gated, not a compatible remote, insecure,
// site-URL drift, corrected, or OK. currentID excludes the server
// being edited from duplicate detection.
func (v *Validator) Validate(ctx context.Context, rawURL, currentID string) Result {
	if rawURL == "" {
		return Result{Status: StatusMissing}
	}

	parsed, ok := urlutil.NormalizeAndParse(rawURL)
	if !ok {
		return Result{Status: StatusInvalid}
	}

	// Trial the secure scheme for duplicate detection and probing.
	secureURL := parsed
	if parsed.Scheme == "http" {
		secureURL = urlutil.WithScheme(parsed, "https")
	}

	if existing, found := v.lookup.LookupByURL(secureURL, true); found && existing.ID != currentID {
		return Result{
			Status:             StatusURLExists,
			ExistingServerName: existing.Name,
			ValidatedURL:       existing.URL.String(),
		}
	}

	remoteURL := secureURL
	var remoteInfo *servers.RemoteInfo
	var reason ErrorReason

	info, httpsErr := v.prober.TestRemote(ctx, secureURL)
	if httpsErr == nil {
		remoteInfo = info
	} else {
		v.log.Debug("https probe failed", zap.Error(httpsErr))
		httpsReason := Classify(httpsErr)

		insecureURL := urlutil.WithScheme(secureURL, "http")
		info, httpErr := v.prober.TestRemote(ctx, insecureURL)
		if httpErr == nil {
			remoteInfo = info
			remoteURL = insecureURL
		} else {
			v.log.Debug("http probe failed", zap.Error(httpErr))
			httpReason := Classify(httpErr)

			// Prefer the HTTPS outcome when both schemes signal the
			// same condition; otherwise take whichever signalled.
			switch {
			case httpsReason.NeedsPreAuth || httpReason.NeedsPreAuth:
				reason.NeedsPreAuth = true
				remoteURL = pick(httpsReason.NeedsPreAuth, secureURL, insecureURL)
			case httpsReason.NeedsBasicAuth || httpReason.NeedsBasicAuth:
				reason.NeedsBasicAuth = true
				remoteURL = pick(httpsReason.NeedsBasicAuth, secureURL, insecureURL)
			case httpsReason.NeedsClientCert || httpReason.NeedsClientCert:
				reason.NeedsClientCert = true
				remoteURL = pick(httpsReason.NeedsClientCert, secureURL, insecureURL)
			}
		}
	}

	switch {
	case reason.NeedsPreAuth:
		return Result{Status: StatusPreAuthRequired, ValidatedURL: urlutil.TrimTrailingSlash(remoteURL)}
	case reason.NeedsBasicAuth:
		return Result{Status: StatusBasicAuthRequired, ValidatedURL: urlutil.TrimTrailingSlash(remoteURL)}
	case reason.NeedsClientCert:
		return Result{Status: StatusClientCertRequired, ValidatedURL: urlutil.TrimTrailingSlash(remoteURL)}
	}

	if remoteInfo == nil {
		// A pasted deep link may carry extra path segments; strip one
		// and rerun the whole procedure until the root fails too.
		if parsed.Path != "/" {
			return v.Validate(ctx, urlutil.StripLastPathSegment(parsed).String(), currentID)
		}
		return Result{Status: StatusNotMattermost, ValidatedURL: urlutil.TrimTrailingSlash(parsed)}
	}

	serverName := remoteInfo.SiteName
	if serverName == "" || serverName == "Mattermost" {
		serverName = strings.Split(remoteURL.Hostname(), ".")[0]
	}

	if remoteURL.Scheme == "http" {
		return Result{
			Status:        StatusInsecure,
			ServerVersion: remoteInfo.ServerVersion,
			ServerName:    serverName,
			ValidatedURL:  remoteURL.String(),
		}
	}

	if siteURL, ok := urlutil.Parse(remoteInfo.SiteURL); ok && remoteURL.String() != siteURL.String() {
		if existing, found := v.lookup.LookupByURL(siteURL, true); found && existing.ID != currentID {
			return Result{
				Status:             StatusURLExists,
				ExistingServerName: existing.Name,
				ValidatedURL:       existing.URL.String(),
			}
		}
		if _, err := v.prober.TestRemote(ctx, siteURL); err != nil {
			// The remote advertises a site URL it cannot serve:
			// configuration drift on the server side.
			return Result{
				Status:        StatusURLNotMatched,
				ServerVersion: remoteInfo.ServerVersion,
				ServerName:    serverName,
				ValidatedURL:  remoteURL.String(),
			}
		}
		return Result{
			Status:        StatusURLUpdated,
			ServerVersion: remoteInfo.ServerVersion,
			ServerName:    serverName,
			ValidatedURL:  remoteInfo.SiteURL,
		}
	}

	return Result{
		Status:        StatusOK,
		ServerVersion: remoteInfo.ServerVersion,
		ServerName:    serverName,
		ValidatedURL:  remoteURL.String(),
	}
}

func pick(preferFirst bool, first, second *url.URL) *url.URL {
	if preferFirst {
		return first
	}
	return second
}
