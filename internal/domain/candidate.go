package domain

import "net/http"

// OriginKind tells which upstream URL shape a candidate was built from.
type OriginKind string

const (
	OriginDirectExport   OriginKind = "direct_export"
	OriginDocExport      OriginKind = "doc_export"
	OriginAuthUserExport OriginKind = "authuser_export"
	OriginViewerPage     OriginKind = "viewer_page"
	// OriginDerived marks a URL recovered from an interstitial document.
	OriginDerived OriginKind = "derived"
)

// HeaderProfile is a named set of outbound request headers.
type HeaderProfile struct {
	Name           string `json:"name" yaml:"name"`
	UserAgent      string `json:"user_agent,omitempty" yaml:"user_agent"`
	Accept         string `json:"accept,omitempty" yaml:"accept"`
	AcceptLanguage string `json:"accept_language,omitempty" yaml:"accept_language"`
	AcceptEncoding string `json:"accept_encoding,omitempty" yaml:"accept_encoding"`
	Referer        string `json:"referer,omitempty" yaml:"referer"`
}

// Apply sets the non-empty profile headers on h.
func (p HeaderProfile) Apply(h http.Header) {
	set := func(key, value string) {
		if value != "" {
			h.Set(key, value)
		}
	}
	set("User-Agent", p.UserAgent)
	set("Accept", p.Accept)
	set("Accept-Language", p.AcceptLanguage)
	set("Accept-Encoding", p.AcceptEncoding)
	set("Referer", p.Referer)
}

// Candidate is one upstream URL and header combination to attempt.
type Candidate struct {
	URL     string
	Profile HeaderProfile
	Origin  OriginKind
}
