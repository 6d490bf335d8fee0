package domain

import "strings"

// Mode selects how a stream request is answered.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeJSON     Mode = "json"
	ModeRedirect Mode = "redirect"
	ModePreview  Mode = "preview"
)

// ParseMode maps the mode query parameter. Empty and unknown values select ModeAuto.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeJSON, ModeRedirect, ModePreview:
		return m
	default:
		return ModeAuto
	}
}

// ResourceRequest is a single inbound request for a file.
type ResourceRequest struct {
	ID          string
	Mode        Mode
	RangeHeader string
}

// NewResourceRequest validates the identifier and builds a request.
func NewResourceRequest(id string, mode Mode, rangeHeader string) (ResourceRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ResourceRequest{}, ErrMissingIdentifier
	}
	if mode == "" {
		mode = ModeAuto
	}
	return ResourceRequest{
		ID:          id,
		Mode:        mode,
		RangeHeader: strings.TrimSpace(rangeHeader),
	}, nil
}
