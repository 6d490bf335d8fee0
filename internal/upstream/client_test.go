package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/drivestream/internal/config"
	"github.com/iconidentify/drivestream/internal/domain"
)

func testConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		ProbeTimeout:      2 * time.Second,
		StreamIdleTimeout: time.Second,
		MaxRedirects:      3,
		MaxHTMLBytes:      1 << 20,
		RetryAttempts:     2,
		RetryDelay:        5 * time.Millisecond,
		MaxRetryDelay:     20 * time.Millisecond,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidateFor(url string) domain.Candidate {
	return domain.Candidate{
		URL: url,
		Profile: domain.HeaderProfile{
			Name:      "test",
			UserAgent: "test-agent",
			Accept:    "*/*",
			Referer:   "https://drive.google.com/",
		},
		Origin: domain.OriginDirectExport,
	}
}

func TestProbe_Binary(t *testing.T) {
	content := []byte("video content data here")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://drive.google.com/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="clip.mp4"`)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Write(content)
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	require.Equal(t, domain.BodyBinary, result.Kind, "err: %v", result.Err)
	require.NotNil(t, result.Body)
	defer result.Body.Close()

	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "video/mp4", result.ContentType)
	assert.Equal(t, int64(len(content)), result.ContentLength)
	assert.Equal(t, `attachment; filename="clip.mp4"`, result.ContentDisposition)
	assert.Nil(t, result.Document)

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestProbe_HTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><a href="/uc?export=download&amp;confirm=abc">Download anyway</a></body></html>`))
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	require.Equal(t, domain.BodyHTML, result.Kind)
	assert.Nil(t, result.Body)
	assert.Contains(t, string(result.Document), "Download anyway")
}

func TestProbe_HTMLDecoding(t *testing.T) {
	page := []byte(`<html><body>confirm=xyz</body></html>`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(page)
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write(page)
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"identity", "", page},
		{"gzip", "gzip", gz.Bytes()},
		{"brotli", "br", br.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Write(tt.body)
			}))
			defer server.Close()

			c := NewClient(testConfig(), testLogger())
			result := c.Probe(context.Background(), candidateFor(server.URL))

			require.Equal(t, domain.BodyHTML, result.Kind, "err: %v", result.Err)
			assert.Equal(t, string(page), string(result.Document))
		})
	}
}

func TestProbe_HTMLTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(bytes.Repeat([]byte("a"), 4096))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxHTMLBytes = 100
	c := NewClient(cfg, testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	require.Equal(t, domain.BodyHTML, result.Kind)
	assert.Len(t, result.Document, 100)
}

func TestProbe_SniffsMissingContentType(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.BodyKind
	}{
		{"html", "<!DOCTYPE html><html><body>warning</body></html>", domain.BodyHTML},
		{"binary", "\x00\x01\x02\x03binary", domain.BodyBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// A nil entry stops the server from sniffing a type of its own.
				w.Header()["Content-Type"] = nil
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(testConfig(), testLogger())
			result := c.Probe(context.Background(), candidateFor(server.URL))
			require.Equal(t, tt.want, result.Kind)

			if result.Body != nil {
				defer result.Body.Close()
				data, err := io.ReadAll(result.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(data), "sniffing must not consume the body")
			}
		})
	}
}

func TestProbe_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html>not found</html>"))
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	assert.Equal(t, domain.BodyError, result.Kind)
	assert.Equal(t, http.StatusNotFound, result.Status)
	assert.True(t, result.NotFound())
	assert.False(t, result.TransportError())
	assert.Error(t, result.Err)
}

func TestProbe_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(url))

	assert.Equal(t, domain.BodyError, result.Kind)
	assert.True(t, result.TransportError())
	assert.Error(t, result.Err)
}

func TestProbe_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ProbeTimeout = 50 * time.Millisecond
	c := NewClient(cfg, testLogger())

	start := time.Now()
	result := c.Probe(context.Background(), candidateFor(server.URL))

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, result.TransportError())
	assert.ErrorIs(t, result.Err, ErrProbeTimeout)
}

func TestProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/file", http.StatusFound)
	})
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"), "profile headers survive redirects")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL+"/start"))

	require.Equal(t, domain.BodyBinary, result.Kind)
	defer result.Body.Close()
	assert.Equal(t, server.URL+"/file", result.FinalURL)
}

func TestProbe_RedirectCap(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	assert.Equal(t, domain.BodyRedirectOnly, result.Kind)
	assert.Equal(t, http.StatusFound, result.Status)
	assert.Equal(t, int32(testConfig().MaxRedirects+1), hits.Load())
}

func TestProbe_RetriesThrottled(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("PK"))
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	require.Equal(t, domain.BodyBinary, result.Kind)
	result.Body.Close()
	assert.Equal(t, int32(2), attempts.Load())
}

func TestProbe_ThrottledExhaustsAttempts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))

	assert.Equal(t, domain.BodyError, result.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.Equal(t, int32(testConfig().RetryAttempts), attempts.Load())
}

func TestSession_KeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/warn", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "download_warning", Value: "tok", Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>warning</html>"))
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("download_warning"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	session := c.NewSession()

	first := session.Probe(context.Background(), candidateFor(server.URL+"/warn"))
	require.Equal(t, domain.BodyHTML, first.Kind)

	second := session.Probe(context.Background(), candidateFor(server.URL+"/get"))
	require.Equal(t, domain.BodyBinary, second.Kind)
	second.Body.Close()

	fresh := c.NewSession().Probe(context.Background(), candidateFor(server.URL+"/get"))
	assert.Equal(t, http.StatusForbidden, fresh.Status, "sessions must not share cookies")
}

func TestStream_IdleTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.StreamIdleTimeout = 50 * time.Millisecond
	c := NewClient(cfg, testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))
	require.Equal(t, domain.BodyBinary, result.Kind)
	defer result.Body.Close()

	start := time.Now()
	_, err := io.ReadAll(result.Body)
	assert.ErrorIs(t, err, ErrStreamStalled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("data"))
	}))
	defer server.Close()

	c := NewClient(testConfig(), testLogger())
	result := c.Probe(context.Background(), candidateFor(server.URL))
	require.Equal(t, domain.BodyBinary, result.Kind)

	assert.NoError(t, result.Body.Close())
	assert.NoError(t, result.Body.Close())
}

func TestIsMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"text/plain", false},
		{"video/mp4", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, isMarkup(tt.in))
		})
	}
}
