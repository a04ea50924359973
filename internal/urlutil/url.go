// Package urlutil classifies and canonicalizes user-supplied server
// addresses.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`^(([^/]+)://)?`)

// Parse parses a string into a canonical absolute URL. The host and
// scheme are lowercased and an empty path becomes "/" so that two
// spellings of the same address compare equal.
func Parse(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u, true
}

// IsValidURL reports whether the string is already an absolute
// HTTP-family URL.
func IsValidURL(raw string) bool {
	u, ok := Parse(raw)
	return ok && (u.Scheme == "http" || u.Scheme == "https")
}

// IsValidURI reports whether the string parses as a URI with an
// explicit scheme, HTTP-family or not.
func IsValidURI(raw string) bool {
	if !strings.Contains(raw, "://") {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Normalize produces a canonical candidate string for a user-supplied
// address. Non-HTTP schemes are rewritten to https, bare hosts are
// prefixed with https. A string that is a strict prefix of "https://"
// or "http://" is returned untouched: the user is still typing the
// scheme and guessing would transform it wrongly.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if IsValidURL(raw) {
		return raw
	}

	lower := strings.ToLower(raw)
	if IsValidURI(raw) && !strings.HasPrefix(lower, "http") {
		return schemePattern.ReplaceAllString(raw, "https://")
	}
	if !strings.HasPrefix("https://", lower) && !strings.HasPrefix("http://", lower) {
		return "https://" + raw
	}
	return raw
}

// NormalizeAndParse normalizes then parses, reporting whether the
// result is a usable absolute URL.
func NormalizeAndParse(raw string) (*url.URL, bool) {
	return Parse(Normalize(raw))
}

// FormatPathName lowercases a URL path and guarantees a trailing slash,
// for prefix comparisons between a candidate path and a server's base
// path.
func FormatPathName(path string) string {
	formatted := strings.ToLower(path)
	if formatted == "" {
		return "/"
	}
	if !strings.HasSuffix(formatted, "/") {
		formatted += "/"
	}
	return formatted
}

// IsInternalURL reports whether a URL points at the same origin as a
// server's base URL, optionally ignoring the scheme.
func IsInternalURL(candidate, base *url.URL, ignoreScheme bool) bool {
	if candidate == nil || base == nil {
		return false
	}
	if candidate.Host != base.Host {
		return false
	}
	return ignoreScheme || candidate.Scheme == base.Scheme
}

// WithScheme returns a copy of the URL with the given scheme.
func WithScheme(u *url.URL, scheme string) *url.URL {
	clone := *u
	clone.Scheme = scheme
	return &clone
}

// TrimTrailingSlash renders a URL without its trailing slash, the form
// surfaced back to a user who is still editing the address.
func TrimTrailingSlash(u *url.URL) string {
	return strings.TrimSuffix(u.String(), "/")
}

// StripLastPathSegment removes the final path segment, used to retry
// validation of a pasted deep link against its parent path.
func StripLastPathSegment(u *url.URL) *url.URL {
	clone := *u
	s := strings.TrimSuffix(clone.String(), "/")
	idx := strings.LastIndex(s, "/")
	if idx <= len(clone.Scheme)+2 {
		return &clone
	}
	stripped, ok := Parse(s[:idx])
	if !ok {
		return &clone
	}
	return stripped
}
