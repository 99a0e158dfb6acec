package mcq

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ResolveTestPath extracts the test identifier from a navigation location such as
// "/test/2025_December%2FP1". The identifier is the first segment after prefix, URL-decoded.
func ResolveTestPath(location, prefix string) (string, error) {
	escaped := location
	if u, err := url.Parse(location); err == nil {
		escaped = u.EscapedPath()
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(escaped, prefix) {
		return "", ErrNoTestSelected
	}
	segment := strings.SplitN(strings.TrimPrefix(escaped, prefix), "/", 2)[0]
	path, err := url.PathUnescape(segment)
	if err != nil {
		return "", errors.Wrapf(ErrNoTestSelected, "decode %q: %v", segment, err)
	}
	if strings.TrimSpace(path) == "" {
		return "", ErrNoTestSelected
	}
	return path, nil
}

// FormatDuration renders a duration in seconds for display, e.g. "1 hr 30 min".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0 min"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%d hr", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%d min", m))
	}
	if s > 0 {
		parts = append(parts, fmt.Sprintf("%d sec", s))
	}
	return strings.Join(parts, " ")
}
