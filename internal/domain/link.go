package domain

import (
	"fmt"
	"strings"
)

// Confidence ranks extracted links; higher values are tried first.
type Confidence int

const (
	ConfidenceUUIDGuess Confidence = iota + 1
	ConfidenceConfirmToken
	ConfidenceURLPattern
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceURLPattern:
		return "url_pattern"
	case ConfidenceConfirmToken:
		return "confirm_token"
	case ConfidenceUUIDGuess:
		return "uuid_guess"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// ParseConfidence parses the textual form produced by Confidence.String.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "url_pattern":
		return ConfidenceURLPattern, nil
	case "confirm_token":
		return ConfidenceConfirmToken, nil
	case "uuid_guess":
		return ConfidenceUUIDGuess, nil
	}
	return 0, fmt.Errorf("unknown confidence %q", s)
}

// ExtractedLink is a follow-up URL recovered from an interstitial document.
type ExtractedLink struct {
	URL        string
	Confidence Confidence
	// Rule names the pattern that produced the link.
	Rule string
}
