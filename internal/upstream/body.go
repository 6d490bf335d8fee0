package upstream

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// readDocument reads an interstitial page into memory as UTF-8. Pages larger
// than limit are truncated; embedded links sit well inside the first megabyte.
func readDocument(body io.Reader, encoding, contentType string, limit int64) ([]byte, error) {
	decoded, done, err := decodeContent(body, encoding)
	if err != nil {
		return nil, err
	}
	defer done()

	limited := io.LimitReader(decoded, limit)
	text, err := charset.NewReader(limited, contentType)
	if err != nil {
		text = limited
	}

	doc, err := io.ReadAll(text)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return doc, nil
}

func decodeContent(r io.Reader, encoding string) (io.Reader, func(), error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return r, func() {}, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, func() { _ = gz.Close() }, nil
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("deflate decode: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "br":
		return brotli.NewReader(r), func() {}, nil
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decode: %w", err)
		}
		return dec, dec.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
