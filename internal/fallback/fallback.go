// Package fallback builds the responses served when a file cannot be, or
// should not be, streamed.
package fallback

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/iconidentify/drivestream/internal/domain"
)

// URLs builds the human-facing upstream URLs for an identifier.
type URLs interface {
	ViewerURL(id string) string
	DownloadURL(id string) string
	PreviewURL(id string) string
}

// Response is a non-streaming reply. Exactly one of Location, JSON or Text is set.
type Response struct {
	Status   int
	Location string
	JSON     *Diagnostic
	Text     string
}

// Links lists where a human or client can reach the file.
type Links struct {
	Viewer   string `json:"viewer_url"`
	Download string `json:"download_url"`
	Preview  string `json:"preview_url"`
	Proxy    string `json:"proxy_url,omitempty"`
}

// Attempt is one probed URL reported in a diagnostic.
type Attempt struct {
	URL     string `json:"url"`
	Origin  string `json:"origin"`
	Profile string `json:"profile"`
}

// Diagnostic is the JSON mode body. ContentLength is omitted when the
// upstream did not announce one.
type Diagnostic struct {
	ID            string    `json:"id"`
	Streamable    bool      `json:"streamable"`
	ResolutionID  string    `json:"resolution_id,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	ContentLength *int64    `json:"content_length,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	LastStatus    int       `json:"last_status,omitempty"`
	Tried         []Attempt `json:"tried,omitempty"`
	Links         Links     `json:"links"`
}

// Composer builds fallback responses.
type Composer struct {
	urls              URLs
	publicBaseURL     string
	streamPath        string
	redirectOnFailure bool
}

// New creates a Composer. publicBaseURL may be empty, in which case proxy
// links are relative to the serving host.
func New(urls URLs, publicBaseURL, streamPath string, redirectOnFailure bool) *Composer {
	if streamPath == "" {
		streamPath = "/api/stream"
	}
	return &Composer{
		urls:              urls,
		publicBaseURL:     strings.TrimRight(publicBaseURL, "/"),
		streamPath:        streamPath,
		redirectOnFailure: redirectOnFailure,
	}
}

// Redirect returns the redirect for the REDIRECT and PREVIEW modes. It never
// needs a resolution. REDIRECT lands on the viewer page; PREVIEW lands on the
// embeddable preview page of the same file instead.
func (c *Composer) Redirect(req domain.ResourceRequest) *Response {
	target := c.urls.ViewerURL(req.ID)
	if req.Mode == domain.ModePreview {
		target = c.urls.PreviewURL(req.ID)
	}
	return &Response{Status: http.StatusFound, Location: target}
}

// Compose returns the response for a resolution that ended in err.
func (c *Composer) Compose(req domain.ResourceRequest, err error) *Response {
	switch req.Mode {
	case domain.ModeRedirect, domain.ModePreview:
		return c.Redirect(req)
	case domain.ModeJSON:
		return &Response{Status: http.StatusOK, JSON: c.failureDiagnostic(req, err)}
	}

	if c.redirectOnFailure && !errors.Is(err, domain.ErrInternalFault) {
		return &Response{Status: http.StatusFound, Location: c.urls.ViewerURL(req.ID)}
	}
	if errors.Is(err, domain.ErrUpstreamNotFound) {
		return &Response{Status: http.StatusNotFound, Text: "file not found"}
	}
	return &Response{Status: http.StatusInternalServerError, Text: "internal error"}
}

// Resolved returns the JSON diagnostic for a successful resolution.
func (c *Composer) Resolved(req domain.ResourceRequest, src *domain.ResolvedSource) *Response {
	d := c.diagnostic(req)
	d.Streamable = true
	d.ResolutionID = src.ResolutionID
	d.ContentType = src.ContentType
	if src.LengthKnown() {
		length := src.ContentLength
		d.ContentLength = &length
	}
	d.Origin = string(src.Origin.Origin)
	return &Response{Status: http.StatusOK, JSON: d}
}

// ProxyURL returns the address of this service's stream endpoint for id.
func (c *Composer) ProxyURL(id string) string {
	return c.publicBaseURL + c.streamPath + "?id=" + url.QueryEscape(id)
}

func (c *Composer) diagnostic(req domain.ResourceRequest) *Diagnostic {
	return &Diagnostic{
		ID: req.ID,
		Links: Links{
			Viewer:   c.urls.ViewerURL(req.ID),
			Download: c.urls.DownloadURL(req.ID),
			Preview:  c.urls.PreviewURL(req.ID),
			Proxy:    c.ProxyURL(req.ID),
		},
	}
}

func (c *Composer) failureDiagnostic(req domain.ResourceRequest, err error) *Diagnostic {
	d := c.diagnostic(req)
	if err == nil {
		return d
	}
	d.Error = err.Error()

	var failure *domain.ResolutionFailure
	if !errors.As(err, &failure) {
		return d
	}
	d.ResolutionID = failure.ResolutionID
	d.Reason = string(failure.Reason)
	d.LastStatus = failure.LastStatus
	for _, cand := range failure.Tried {
		d.Tried = append(d.Tried, Attempt{
			URL:     cand.URL,
			Origin:  string(cand.Origin),
			Profile: cand.Profile.Name,
		})
	}
	return d
}
