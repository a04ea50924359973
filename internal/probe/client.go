// Package probe performs network round-trips against candidate servers
// to confirm compatibility and extract advertised identity, and
// orchestrates full URL validation on top of them.
package probe

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// PreAuthHeader carries the pre-authentication secret on probe
// requests for servers behind a pre-auth gate.
const PreAuthHeader = "X-Mattermost-Preauth-Secret"

const (
	pingPath   = "/api/v4/system/ping"
	configPath = "/api/v4/config/client"
)

// newRestyClient builds the probe HTTP client: resty over a
// retryablehttp client, short timeouts since probes run while the user
// is typing. StandardClient keeps the retry loop inside the transport
// so resty sees only the final response.
func newRestyClient() *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient())
	client.
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "deskshell/1.0")
	return client
}
