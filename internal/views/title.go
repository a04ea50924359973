package views

import (
	"regexp"
	"strings"
)

var unreadPrefixPattern = regexp.MustCompile(`^\(\d+\) `)

// CleanTitle strips the hosted page's decorations from a window title:
// the "(n) " unread badge prefix and the trailing " - team - siteName"
// suffix. The site name comes from the cached remote info; when it is
// unknown the suffix is left alone.
func CleanTitle(rawTitle, siteName string) string {
	title := unreadPrefixPattern.ReplaceAllString(rawTitle, "")
	if siteName == "" {
		return title
	}
	suffix := " - " + siteName
	if !strings.HasSuffix(title, suffix) {
		return title
	}
	title = strings.TrimSuffix(title, suffix)
	if idx := strings.LastIndex(title, " - "); idx > 0 {
		title = title[:idx]
	}
	return title
}
