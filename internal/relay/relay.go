// Package relay streams a resolved upstream body to a client with correct
// full or partial content semantics.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/drivestream/internal/domain"
	"github.com/iconidentify/drivestream/internal/metrics"
)

const (
	defaultContentType = "application/octet-stream"
	copyBufferSize     = 32 * 1024
)

// exposedHeaders are readable by cross-origin browser clients.
const exposedHeaders = "Content-Length, Content-Range, Accept-Ranges, Content-Disposition, Content-Type"

// Response describes what will be sent to the client for one source.
type Response struct {
	Status int
	Header http.Header
	// Range is the served interval for a 206 response.
	Range *ByteRange
	// Body yields exactly the bytes promised by Header. The upstream body
	// is forward-only, so a range is served by discarding the bytes before it.
	Body io.ReadCloser
}

// Relay builds and writes client responses.
type Relay struct {
	cacheControl string
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates a Relay.
func New(cacheControl string, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{cacheControl: cacheControl, metrics: m, logger: logger}
}

// Prepare computes status and headers for src and the client's Range header.
// A range is honored only when the length is known and the body is not
// content-encoded; an unusable range yields the full body with status 200.
func (r *Relay) Prepare(src *domain.ResolvedSource, rangeHeader string) *Response {
	h := make(http.Header)

	contentType := src.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	h.Set("Content-Type", contentType)
	if r.cacheControl != "" {
		h.Set("Cache-Control", r.cacheControl)
	}
	if src.ContentDisposition != "" {
		h.Set("Content-Disposition", src.ContentDisposition)
	}
	if src.ContentEncoding != "" && src.ContentEncoding != "identity" {
		h.Set("Content-Encoding", src.ContentEncoding)
	}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", exposedHeaders)

	resp := &Response{Status: http.StatusOK, Header: h, Body: src.Body}
	if !src.LengthKnown() {
		return resp
	}

	if !src.SupportsRange {
		h.Set("Accept-Ranges", "none")
		h.Set("Content-Length", strconv.FormatInt(src.ContentLength, 10))
		return resp
	}
	h.Set("Accept-Ranges", "bytes")

	if rangeHeader != "" {
		br, err := ParseRange(rangeHeader, src.ContentLength)
		if err == nil {
			resp.Status = http.StatusPartialContent
			resp.Range = &br
			h.Set("Content-Range", br.ContentRange(src.ContentLength))
			h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
			resp.Body = newSection(src.Body, br.Start, br.Length())
			return resp
		}
		r.logger.Debug("ignoring range", "range", rangeHeader, "error", err)
	}

	h.Set("Content-Length", strconv.FormatInt(src.ContentLength, 10))
	return resp
}

// Write sends resp to w. The body is skipped when withBody is false. The
// body is closed on every path. It returns the number of body bytes written.
func (r *Relay) Write(ctx context.Context, w http.ResponseWriter, resp *Response, withBody bool) (int64, error) {
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)

	if !withBody {
		r.metrics.ObserveRelay(resp.Status, 0)
		return 0, nil
	}

	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(w, resp.Body, buf)
	r.metrics.ObserveRelay(resp.Status, written)
	if err != nil {
		level := slog.LevelWarn
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "relay aborted", "status", resp.Status, "bytes", written, "error", err)
		return written, err
	}
	return written, nil
}

// section reads length bytes starting at offset from a forward-only stream.
type section struct {
	body      io.ReadCloser
	skip      int64
	remaining int64
}

func newSection(body io.ReadCloser, offset, length int64) *section {
	return &section{body: body, skip: offset, remaining: length}
}

func (s *section) Read(p []byte) (int, error) {
	if s.skip > 0 {
		n, err := io.CopyN(io.Discard, s.body, s.skip)
		s.skip -= n
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
	if s.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.body.Read(p)
	s.remaining -= int64(n)
	if errors.Is(err, io.EOF) && s.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (s *section) Close() error {
	return s.body.Close()
}
