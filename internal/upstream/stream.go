package upstream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// stream wraps an upstream body handed to the relay. It cancels the
// request when no data arrives for the idle timeout and releases the
// connection on Close.
type stream struct {
	ctx      context.Context
	body     io.ReadCloser
	cancel   context.CancelCauseFunc
	idle     time.Duration
	watchdog *time.Timer
	logger   *slog.Logger
	url      string

	mu     sync.Mutex
	read   int64
	closed bool
}

func newStream(ctx context.Context, body io.ReadCloser, cancel context.CancelCauseFunc, idle time.Duration, logger *slog.Logger, url string) *stream {
	s := &stream{
		ctx:    ctx,
		body:   body,
		cancel: cancel,
		idle:   idle,
		logger: logger,
		url:    url,
	}
	if idle > 0 {
		s.watchdog = time.AfterFunc(idle, func() { cancel(ErrStreamStalled) })
	}
	return s
}

func (s *stream) Read(buf []byte) (int, error) {
	n, err := s.body.Read(buf)
	if n > 0 {
		s.mu.Lock()
		s.read += int64(n)
		s.mu.Unlock()
		if s.watchdog != nil {
			s.watchdog.Reset(s.idle)
		}
	}
	if err != nil && err != io.EOF {
		err = withCause(s.ctx, err)
	}
	return n, err
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	read := s.read
	s.mu.Unlock()

	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	err := s.body.Close()
	s.cancel(nil)

	s.logger.Debug("upstream stream closed", "url", s.url, "bytes", read)
	return err
}
