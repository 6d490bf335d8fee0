// Package engine assembles the resolution and relay components from configuration.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/iconidentify/drivestream/internal/candidate"
	"github.com/iconidentify/drivestream/internal/config"
	"github.com/iconidentify/drivestream/internal/extract"
	"github.com/iconidentify/drivestream/internal/fallback"
	"github.com/iconidentify/drivestream/internal/metrics"
	"github.com/iconidentify/drivestream/internal/profile"
	"github.com/iconidentify/drivestream/internal/relay"
	"github.com/iconidentify/drivestream/internal/resolver"
	"github.com/iconidentify/drivestream/internal/upstream"
)

// Engine holds the wired components shared by the server and the CLI.
type Engine struct {
	Profiles  *profile.Library
	Generator *candidate.Generator
	Extractor *extract.Extractor
	Upstream  *upstream.Client
	Resolver  *resolver.Resolver
	Relay     *relay.Relay
	Composer  *fallback.Composer
	Metrics   *metrics.Metrics
}

// New wires an Engine. m may be nil. streamPath is the public path of the
// stream endpoint used in proxy links.
func New(cfg *config.Config, m *metrics.Metrics, streamPath string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	patterns, err := extract.LoadPatterns(cfg.Extract.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("load extraction patterns: %w", err)
	}

	profiles := profile.NewLibrary(cfg.Upstream.UserAgent, cfg.Upstream.DriveHost)
	gen := candidate.NewGenerator(candidate.Hosts{
		Drive:   cfg.Upstream.DriveHost,
		Docs:    cfg.Upstream.DocsHost,
		Content: cfg.Upstream.ContentHost,
	}, profiles)
	hosts := gen.Hosts()
	ext := extract.New(patterns, extract.Hosts{Drive: hosts.Drive, Content: hosts.Content}, cfg.Extract.MaxLinks)

	client := upstream.NewClient(cfg.Upstream, logger.With("component", "upstream"))
	res := resolver.New(gen, ext, func() upstream.Prober { return client.NewSession() }, resolver.Options{
		MaxDerivedPerCandidate: cfg.Resolver.MaxDerivedPerCandidate,
		Neutral:                profiles.Get(profile.Neutral),
		Metrics:                m,
		Logger:                 logger.With("component", "resolver"),
	})

	logger.Info("engine ready",
		"patterns_version", patterns.Version,
		"pattern_rules", len(patterns.Rules),
		"candidates_per_id", len(gen.Generate("probe")),
		"max_derived_per_candidate", cfg.Resolver.MaxDerivedPerCandidate,
	)

	return &Engine{
		Profiles:  profiles,
		Generator: gen,
		Extractor: ext,
		Upstream:  client,
		Resolver:  res,
		Relay:     relay.New(cfg.Relay.CacheControl, m, logger.With("component", "relay")),
		Composer:  fallback.New(gen, cfg.Server.PublicBaseURL, streamPath, cfg.Relay.RedirectOnFailure),
		Metrics:   m,
	}, nil
}
