package domain

import (
	"io"
	"net/http"
	"strings"
)

// BodyKind classifies an upstream response.
type BodyKind string

const (
	BodyBinary       BodyKind = "binary"
	BodyHTML         BodyKind = "html"
	BodyRedirectOnly BodyKind = "redirect_only"
	BodyError        BodyKind = "error"
)

// ProbeResult is the classified outcome of one upstream fetch.
type ProbeResult struct {
	Candidate Candidate
	// Status is 0 when no HTTP response was received.
	Status             int
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	// ContentLength is -1 when unknown.
	ContentLength int64
	// FinalURL is the URL that answered after redirects.
	FinalURL string
	Kind     BodyKind

	// Body is set only for BodyBinary. The receiver owns it and must close it.
	Body io.ReadCloser
	// Document holds the decoded interstitial page for BodyHTML.
	Document []byte

	Err error
}

// TransportError reports whether the fetch failed before any HTTP status was received.
func (r *ProbeResult) TransportError() bool {
	return r.Kind == BodyError && r.Status == 0
}

// NotFound reports whether the upstream answered with an absence or access-denied status.
func (r *ProbeResult) NotFound() bool {
	switch r.Status {
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden, http.StatusUnauthorized:
		return true
	}
	return false
}

// Source converts a binary result into a ResolvedSource, handing over the body.
// It returns nil for any other kind.
func (r *ProbeResult) Source() *ResolvedSource {
	if r.Kind != BodyBinary || r.Body == nil {
		return nil
	}
	src := &ResolvedSource{
		ContentType:        r.ContentType,
		ContentEncoding:    r.ContentEncoding,
		ContentDisposition: r.ContentDisposition,
		ContentLength:      r.ContentLength,
		Body:               r.Body,
		Origin:             r.Candidate,
		FinalURL:           r.FinalURL,
	}
	src.SupportsRange = src.LengthKnown() && identityEncoding(r.ContentEncoding)
	r.Body = nil
	return src
}

// ResolvedSource is a byte stream ready to be relayed to one client.
type ResolvedSource struct {
	ResolutionID       string
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	// ContentLength is -1 when unknown.
	ContentLength int64
	Body          io.ReadCloser
	SupportsRange bool
	Origin        Candidate
	FinalURL      string
}

// LengthKnown reports whether the upstream announced a content length.
func (s *ResolvedSource) LengthKnown() bool {
	return s.ContentLength >= 0
}

// Close releases the upstream connection.
func (s *ResolvedSource) Close() error {
	if s.Body == nil {
		return nil
	}
	return s.Body.Close()
}

func identityEncoding(enc string) bool {
	enc = strings.TrimSpace(strings.ToLower(enc))
	return enc == "" || enc == "identity"
}
