package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	// ErrMissingIdentifier is returned when a request carries no file identifier.
	ErrMissingIdentifier = errors.New("missing file identifier")

	// ErrUpstreamUnreachable is returned when no candidate could be fetched at the transport level.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamInterstitialOnly is returned when every candidate answered with an
	// HTML document and none of them carried a usable link.
	ErrUpstreamInterstitialOnly = errors.New("upstream returned only interstitial pages")

	// ErrUpstreamNotFound is returned when the upstream reports the file as missing or forbidden.
	ErrUpstreamNotFound = errors.New("file not found upstream")

	// ErrInvalidRange is returned for malformed or unsatisfiable Range headers.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInternalFault is returned for unexpected failures during resolution.
	ErrInternalFault = errors.New("internal fault")
)

// FailureReason classifies why a resolution was exhausted.
type FailureReason string

const (
	ReasonAllHTML     FailureReason = "all_html"
	ReasonUnreachable FailureReason = "unreachable"
	ReasonNotFound    FailureReason = "not_found"
)

// Err returns the sentinel error for the reason.
func (r FailureReason) Err() error {
	switch r {
	case ReasonAllHTML:
		return ErrUpstreamInterstitialOnly
	case ReasonNotFound:
		return ErrUpstreamNotFound
	default:
		return ErrUpstreamUnreachable
	}
}

// ResolutionFailure is the terminal result of a resolution that found no byte stream.
type ResolutionFailure struct {
	ResolutionID string
	Tried        []Candidate
	// LastStatus is the last HTTP status seen from the upstream, 0 if none.
	LastStatus int
	Reason     FailureReason
}

func (f *ResolutionFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolution exhausted (%s) after %d attempts", f.Reason, len(f.Tried))
	if f.LastStatus != 0 {
		fmt.Fprintf(&b, ", last status %d", f.LastStatus)
	}
	return b.String()
}

func (f *ResolutionFailure) Unwrap() error {
	return f.Reason.Err()
}
