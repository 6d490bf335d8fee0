package upstream

import (
	"context"

	"github.com/iconidentify/drivestream/internal/domain"
)

// Prober performs a single classified fetch of a candidate.
type Prober interface {
	// Probe never returns an error: failures are reported through the
	// result's Kind and Err. A BodyBinary result hands its Body to the caller.
	Probe(ctx context.Context, c domain.Candidate) *domain.ProbeResult
}
