// =============================================================================
// utils.go - helpers
// =============================================================================
//
// Small helpers shared across the pipeline:
//   - text: whitespace normalisation, truncation for log lines
//   - URLs: resolving hrefs against the origin, origin comparison
//   - waiting: a context-aware sleep used for politeness and backoff delays
//
// =============================================================================
package pipeline

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Text
// -----------------------------------------------------------------------------

// normalizeWhitespace collapses runs of whitespace into single spaces.
//
//	normalizeWhitespace("  hello \n  world ")  // "hello world"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateString shortens s to maxLen runes, ending with "...".
//
//	truncateString("Stopy procentowe", 8)  // "Stopy..."
//	truncateString("Złoty", 10)            // "Złoty"
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// -----------------------------------------------------------------------------
// URLs
// -----------------------------------------------------------------------------

// resolveURL resolves href against base. Returns nil for hrefs that do
// not parse or that resolve to something other than http(s).
func resolveURL(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return u
}

// sameOrigin compares scheme, host and effective port of two URLs.
//
//	https://www.bankier.pl/a  vs https://WWW.bankier.pl:443/b   // true
//	https://www.bankier.pl/a  vs https://www.bankier.pl.evil.com // false
//	http://www.bankier.pl/a   vs https://www.bankier.pl          // false
func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

// effectivePort fills in the scheme default when the URL has no port.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}

// -----------------------------------------------------------------------------
// Waiting
// -----------------------------------------------------------------------------

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the production SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
