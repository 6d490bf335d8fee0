// Package resolver drives candidates through probing and link extraction
// until one yields a byte stream or every strategy is exhausted.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/drivestream/internal/domain"
	"github.com/iconidentify/drivestream/internal/metrics"
	"github.com/iconidentify/drivestream/internal/upstream"
)

// Generator produces the ordered candidates for an identifier.
type Generator interface {
	Generate(id string) []domain.Candidate
}

// Extractor recovers follow-up links from an interstitial document.
type Extractor interface {
	Extract(id string, doc []byte) []domain.ExtractedLink
}

// SessionFactory returns the prober used for one resolution.
type SessionFactory func() upstream.Prober

// Options tunes a Resolver.
type Options struct {
	// MaxDerivedPerCandidate caps probes of extracted links per candidate.
	MaxDerivedPerCandidate int
	// Neutral is the header profile used for derived links.
	Neutral domain.HeaderProfile
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Resolver resolves identifiers to byte streams.
type Resolver struct {
	generator  Generator
	extractor  Extractor
	sessions   SessionFactory
	maxDerived int
	neutral    domain.HeaderProfile
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Resolver.
func New(gen Generator, ext Extractor, sessions SessionFactory, opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxDerivedPerCandidate < 0 {
		opts.MaxDerivedPerCandidate = 0
	}
	return &Resolver{
		generator:  gen,
		extractor:  ext,
		sessions:   sessions,
		maxDerived: opts.MaxDerivedPerCandidate,
		neutral:    opts.Neutral,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Candidates returns the ordered candidates for id without probing them.
func (r *Resolver) Candidates(id string) []domain.Candidate {
	return r.generator.Generate(id)
}

// Resolve runs the resolution for req. On success the caller owns the
// returned source and must close it. When every strategy fails the error is
// a *domain.ResolutionFailure; a canceled ctx yields the context error.
func (r *Resolver) Resolve(ctx context.Context, req domain.ResourceRequest) (src *domain.ResolvedSource, err error) {
	if req.ID == "" {
		return nil, domain.ErrMissingIdentifier
	}

	run := &resolution{
		Resolver: r,
		ctx:      ctx,
		req:      req,
		id:       uuid.NewString(),
		prober:   r.sessions(),
		seen:     make(map[string]bool),
		allHTML:  true,
		started:  time.Now(),
	}
	run.logger = r.logger.With("resolution_id", run.id, "file_id", req.ID, "mode", req.Mode)

	defer func() {
		if p := recover(); p != nil {
			if run.source != nil {
				run.source.Close()
			}
			run.logger.Error("resolution panicked", "panic", p)
			src, err = nil, fmt.Errorf("%w: %v", domain.ErrInternalFault, p)
		}
	}()

	return run.execute()
}

type state int

const (
	stateStart state = iota
	stateProbing
	stateExtracting
	stateProbingDerived
	stateSuccess
	stateExhausted
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateProbing:
		return "probing"
	case stateExtracting:
		return "extracting"
	case stateProbingDerived:
		return "probing_derived"
	case stateSuccess:
		return "success"
	case stateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// resolution is the mutable state of one Resolve call.
type resolution struct {
	*Resolver
	ctx    context.Context
	req    domain.ResourceRequest
	id     string
	prober upstream.Prober
	logger *slog.Logger

	candidates []domain.Candidate
	index      int
	budget     int

	// doc is the interstitial page awaiting extraction.
	doc         []byte
	derivedLeft int
	pending     domain.ExtractedLink

	tried          []domain.Candidate
	seen           map[string]bool
	lastStatus     int
	transportError bool
	notFound       bool
	allHTML        bool

	source  *domain.ResolvedSource
	started time.Time
}

func (run *resolution) execute() (*domain.ResolvedSource, error) {
	current := stateStart
	for {
		if err := run.ctx.Err(); err != nil {
			if run.source != nil {
				run.source.Close()
				run.source = nil
			}
			run.metrics.ObserveResolution(metrics.OutcomeCanceled, len(run.tried), time.Since(run.started))
			run.logger.Info("resolution canceled", "probes", len(run.tried), "error", err)
			return nil, err
		}

		var next state
		switch current {
		case stateStart:
			next = run.start()
		case stateProbing:
			next = run.probeCandidate()
		case stateExtracting:
			next = run.extract()
		case stateProbingDerived:
			next = run.probeDerived()
		case stateSuccess:
			return run.succeed(), nil
		case stateExhausted:
			return nil, run.exhaust()
		}

		if next != current {
			run.logger.Debug("state transition", "from", current, "to", next, "candidate", run.index)
		}
		current = next
	}
}

func (run *resolution) start() state {
	run.candidates = run.generator.Generate(run.req.ID)
	run.budget = len(run.candidates) * (1 + run.maxDerived)
	if len(run.candidates) == 0 {
		return stateExhausted
	}
	return stateProbing
}

func (run *resolution) probeCandidate() state {
	if run.index >= len(run.candidates) {
		return stateExhausted
	}
	cand := run.candidates[run.index]
	if run.seen[cand.URL] {
		run.index++
		return stateProbing
	}
	if len(run.tried) >= run.budget {
		return stateExhausted
	}

	result := run.probe(cand)
	switch result.Kind {
	case domain.BodyBinary:
		run.source = result.Source()
		return stateSuccess
	case domain.BodyHTML:
		run.doc = result.Document
		run.derivedLeft = run.maxDerived
		return stateExtracting
	default:
		run.index++
		return stateProbing
	}
}

func (run *resolution) extract() state {
	doc := run.doc
	run.doc = nil

	if run.derivedLeft > 0 {
		for _, link := range run.extractor.Extract(run.req.ID, doc) {
			if !run.seen[link.URL] {
				run.pending = link
				return stateProbingDerived
			}
		}
	}
	run.index++
	return stateProbing
}

func (run *resolution) probeDerived() state {
	if len(run.tried) >= run.budget {
		return stateExhausted
	}
	run.derivedLeft--

	result := run.probe(domain.Candidate{
		URL:     run.pending.URL,
		Profile: run.neutral,
		Origin:  domain.OriginDerived,
	})
	switch result.Kind {
	case domain.BodyBinary:
		run.source = result.Source()
		return stateSuccess
	case domain.BodyHTML:
		if run.derivedLeft > 0 {
			run.doc = result.Document
			return stateExtracting
		}
	}
	run.index++
	return stateProbing
}

// probe performs one fetch and folds its classification into the failure summary.
func (run *resolution) probe(cand domain.Candidate) *domain.ProbeResult {
	run.seen[cand.URL] = true
	run.tried = append(run.tried, cand)

	result := run.prober.Probe(run.ctx, cand)
	run.metrics.ObserveProbe(cand.Origin, result.Kind)

	if result.Status != 0 {
		run.lastStatus = result.Status
	}
	if result.Kind != domain.BodyHTML {
		run.allHTML = false
	}
	if result.TransportError() {
		run.transportError = true
	}
	if result.NotFound() {
		run.notFound = true
	}
	return result
}

func (run *resolution) succeed() *domain.ResolvedSource {
	run.source.ResolutionID = run.id
	run.metrics.ObserveResolution(metrics.OutcomeResolved, len(run.tried), time.Since(run.started))
	run.logger.Info("resolution succeeded",
		"origin", run.source.Origin.Origin,
		"url", run.source.Origin.URL,
		"final_url", run.source.FinalURL,
		"content_type", run.source.ContentType,
		"content_length", run.source.ContentLength,
		"probes", len(run.tried),
		"duration", time.Since(run.started),
	)
	return run.source
}

func (run *resolution) exhaust() *domain.ResolutionFailure {
	failure := &domain.ResolutionFailure{
		ResolutionID: run.id,
		Tried:        run.tried,
		LastStatus:   run.lastStatus,
		Reason:       run.reason(),
	}
	run.metrics.ObserveResolution(string(failure.Reason), len(run.tried), time.Since(run.started))
	run.logger.Info("resolution exhausted",
		"reason", failure.Reason,
		"last_status", failure.LastStatus,
		"probes", len(run.tried),
		"duration", time.Since(run.started),
	)
	return failure
}

func (run *resolution) reason() domain.FailureReason {
	switch {
	case run.transportError:
		return domain.ReasonUnreachable
	case run.allHTML && len(run.tried) > 0:
		return domain.ReasonAllHTML
	case run.notFound:
		return domain.ReasonNotFound
	default:
		return domain.ReasonUnreachable
	}
}
