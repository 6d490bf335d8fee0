package handler

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/iconidentify/drivestream/internal/domain"
	"github.com/iconidentify/drivestream/internal/fallback"
	"github.com/iconidentify/drivestream/internal/relay"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockPatterns is a test implementation of PatternSource.
type mockPatterns struct {
	version string
}

func (m mockPatterns) Version() string { return m.version }

// mockBody records whether the relayed body was closed.
type mockBody struct {
	io.Reader
	closed bool
}

func (b *mockBody) Close() error {
	b.closed = true
	return nil
}

// mockResolver is a test implementation of Resolver.
type mockResolver struct {
	data  string
	body  *mockBody
	err   error
	calls []domain.ResourceRequest
}

func (m *mockResolver) Resolve(ctx context.Context, req domain.ResourceRequest) (*domain.ResolvedSource, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	m.body = &mockBody{Reader: strings.NewReader(m.data)}
	return &domain.ResolvedSource{
		ResolutionID:  "res-test",
		ContentType:   "video/mp4",
		ContentLength: int64(len(m.data)),
		Body:          m.body,
		SupportsRange: true,
		Origin:        domain.Candidate{URL: "https://drive.usercontent.google.com/download?id=F", Origin: domain.OriginDirectExport},
	}, nil
}

// testURLs is a fixed implementation of fallback.URLs.
type testURLs struct{}

func (testURLs) ViewerURL(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view"
}

func (testURLs) DownloadURL(id string) string {
	return "https://drive.google.com/uc?export=download&id=" + id
}

func (testURLs) PreviewURL(id string) string {
	return "https://drive.google.com/file/d/" + id + "/preview"
}

func newTestStreamHandler(resolver Resolver, redirectOnFailure bool) *StreamHandler {
	return NewStreamHandler(
		resolver,
		relay.New("public, max-age=3600", nil, testLogger()),
		fallback.New(testURLs{}, "https://proxy.example.com", "/api/stream", redirectOnFailure),
		testLogger(),
	)
}
