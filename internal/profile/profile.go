// Package profile holds the named outbound header sets used against the
// upstream content host.
package profile

import (
	"sort"
	"strings"

	"github.com/iconidentify/drivestream/internal/domain"
)

// Profile names.
const (
	// Browser mimics a desktop browser opening a page.
	Browser = "browser"
	// Download mimics a browser following a download link.
	Download = "download"
	// Minimal sends only a bare user agent, like a scripted fetch.
	Minimal = "minimal"
	// Neutral is used for links recovered from interstitial pages; the
	// referer is pinned to the upstream's own domain.
	Neutral = "neutral"
)

// DefaultUserAgent is the browser user agent sent when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Library is an immutable set of header profiles.
type Library struct {
	profiles map[string]domain.HeaderProfile
}

// NewLibrary builds the profile set. referer is the upstream origin pinned on
// browser-like profiles; an empty userAgent selects DefaultUserAgent.
func NewLibrary(userAgent, referer string) *Library {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if referer != "" && !strings.HasSuffix(referer, "/") {
		referer += "/"
	}

	return &Library{profiles: map[string]domain.HeaderProfile{
		Browser: {
			Name:           Browser,
			UserAgent:      userAgent,
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.9",
			AcceptEncoding: "gzip, deflate, br, zstd",
			Referer:        referer,
		},
		Download: {
			Name:           Download,
			UserAgent:      userAgent,
			Accept:         "*/*",
			AcceptLanguage: "en-US,en;q=0.9",
			Referer:        referer,
		},
		Minimal: {
			Name:      Minimal,
			UserAgent: "drivestream/1.0",
			Accept:    "*/*",
		},
		Neutral: {
			Name:      Neutral,
			UserAgent: userAgent,
			Accept:    "*/*",
			Referer:   referer,
		},
	}}
}

// Get returns the named profile, falling back to Minimal for unknown names.
func (l *Library) Get(name string) domain.HeaderProfile {
	if p, ok := l.profiles[name]; ok {
		return p
	}
	return l.profiles[Minimal]
}

// Names lists the profile names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.profiles))
	for name := range l.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
