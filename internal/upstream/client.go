package upstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/iconidentify/drivestream/internal/config"
	"github.com/iconidentify/drivestream/internal/domain"
)

var (
	// ErrProbeTimeout is reported when a probe exceeds its deadline.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrStreamStalled is reported when a relayed body delivers no data within the idle timeout.
	ErrStreamStalled = errors.New("upstream stream stalled")

	errThrottled = errors.New("upstream throttled")
)

// Client owns the upstream transport shared by all probe sessions.
type Client struct {
	transport http.RoundTripper
	cfg       config.UpstreamConfig
	retry     RetryConfig
	logger    *slog.Logger
}

// NewClient creates an upstream client.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Compression is negotiated per header profile so binary bodies
		// reach the client exactly as the upstream sent them.
		DisableCompression: true,
	}

	var rt http.RoundTripper = transport
	if cfg.RequestsPerSecond > 0 {
		rt = &limitedTransport{next: rt, limiter: NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst)}
	}

	if logger == nil {
		logger = slog.Default()
	}

	retry := DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		retry.MaxDelay = cfg.MaxRetryDelay
	}

	return &Client{
		transport: rt,
		cfg:       cfg,
		retry:     retry,
		logger:    logger,
	}
}

// NewSession returns a prober with its own cookie jar. One session serves
// one resolution so confirmation cookies never leak between requests.
func (c *Client) NewSession() *Session {
	// cookiejar.New only fails on a broken public suffix list, and none is set.
	jar, _ := cookiejar.New(nil)
	return &Session{
		owner: c,
		client: &http.Client{
			Transport:     c.transport,
			Jar:           jar,
			CheckRedirect: c.checkRedirect,
		},
	}
}

// Probe runs a single probe in a fresh session.
func (c *Client) Probe(ctx context.Context, cand domain.Candidate) *domain.ProbeResult {
	return c.NewSession().Probe(ctx, cand)
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.cfg.MaxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

// Session probes candidates for one resolution.
type Session struct {
	owner  *Client
	client *http.Client
}

// Probe fetches the candidate and classifies the response. Throttled
// responses (429, 503) are retried with backoff up to the configured attempts.
func (s *Session) Probe(ctx context.Context, cand domain.Candidate) *domain.ProbeResult {
	result, _ := RetryWithCheck(ctx, s.owner.retry, func() (*domain.ProbeResult, error) {
		r := s.probeOnce(ctx, cand)
		if r.Status == http.StatusTooManyRequests || r.Status == http.StatusServiceUnavailable {
			return r, errThrottled
		}
		return r, nil
	}, func(err error) bool {
		return errors.Is(err, errThrottled)
	})

	attrs := []any{
		"origin", cand.Origin,
		"profile", cand.Profile.Name,
		"status", result.Status,
		"kind", result.Kind,
		"url", cand.URL,
	}
	if result.Err != nil {
		attrs = append(attrs, "error", result.Err)
	}
	s.owner.logger.Debug("probe finished", attrs...)

	return result
}

func (s *Session) probeOnce(ctx context.Context, cand domain.Candidate) *domain.ProbeResult {
	result := &domain.ProbeResult{
		Candidate:     cand,
		ContentLength: -1,
		Kind:          domain.BodyError,
	}

	ctx, cancel := context.WithCancelCause(ctx)
	deadline := time.AfterFunc(s.owner.cfg.ProbeTimeout, func() { cancel(ErrProbeTimeout) })
	release := func() {
		deadline.Stop()
		cancel(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.URL, nil)
	if err != nil {
		release()
		result.Err = fmt.Errorf("create request: %w", err)
		return result
	}
	cand.Profile.Apply(req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		result.Err = fmt.Errorf("send request: %w", withCause(ctx, err))
		release()
		return result
	}

	result.Status = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")
	result.ContentEncoding = resp.Header.Get("Content-Encoding")
	result.ContentDisposition = resp.Header.Get("Content-Disposition")
	result.ContentLength = resp.ContentLength

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		resp.Body.Close()
		release()
		result.Kind = domain.BodyRedirectOnly
		result.Err = fmt.Errorf("redirect not followed: status %d after %d hops", resp.StatusCode, s.owner.cfg.MaxRedirects)
		return result
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		resp.Body.Close()
		release()
		result.Err = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		return result
	}

	var body io.ReadCloser = resp.Body
	markup := isMarkup(result.ContentType)
	if result.ContentType == "" {
		// Without a declared type, sniff only to tell markup from everything else.
		buffered := bufio.NewReaderSize(resp.Body, 512)
		peek, _ := buffered.Peek(512)
		markup = isMarkup(http.DetectContentType(peek))
		body = readCloser{Reader: buffered, Closer: resp.Body}
	}

	if markup {
		doc, err := readDocument(body, result.ContentEncoding, result.ContentType, s.owner.cfg.MaxHTMLBytes)
		body.Close()
		if err != nil {
			// The exchange never completed, which counts as a transport failure.
			result.Status = 0
			result.Err = fmt.Errorf("read document: %w", withCause(ctx, err))
			release()
			return result
		}
		release()
		result.Kind = domain.BodyHTML
		result.Document = doc
		return result
	}

	if !deadline.Stop() {
		body.Close()
		cancel(nil)
		result.Status = 0
		result.Err = ErrProbeTimeout
		return result
	}

	result.Kind = domain.BodyBinary
	result.Body = newStream(ctx, body, cancel, s.owner.cfg.StreamIdleTimeout, s.owner.logger, cand.URL)
	return result
}

func isMarkup(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func withCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrProbeTimeout) || errors.Is(cause, ErrStreamStalled) {
		return fmt.Errorf("%w: %v", cause, err)
	}
	return err
}

type readCloser struct {
	io.Reader
	io.Closer
}
