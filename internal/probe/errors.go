package probe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RemoteError is a failed probe round-trip. StatusCode is zero when
// the failure happened below HTTP (DNS, dial, TLS).
type RemoteError struct {
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote unreachable: %v", e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ErrorReason is the stack-agnostic classification of a probe failure
// at the transport-error boundary.
type ErrorReason struct {
	NeedsPreAuth    bool
	NeedsBasicAuth  bool
	NeedsClientCert bool
}

// Classify maps a probe error onto an auth-gate signal: 403 means a
// pre-authentication gate, 401 means basic auth, and a TLS handshake
// rejected for want of a certificate means a client certificate is
// required. Unrelated failures classify as nothing.
func Classify(err error) ErrorReason {
	var reason ErrorReason
	if err == nil {
		return reason
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch remoteErr.StatusCode {
		case http.StatusForbidden:
			reason.NeedsPreAuth = true
		case http.StatusUnauthorized:
			reason.NeedsBasicAuth = true
		}
		if remoteErr.StatusCode != 0 {
			return reason
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "certificate required") ||
		strings.Contains(msg, "bad certificate") ||
		strings.Contains(msg, "client didn't provide a certificate") {
		reason.NeedsClientCert = true
	}
	return reason
}
