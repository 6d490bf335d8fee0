package relay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iconidentify/drivestream/internal/domain"
)

// ByteRange is an inclusive byte interval.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a resource of size bytes.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single "bytes=start-end" range against a resource of
// size bytes. end defaults to the last byte. Suffix ranges, multiple ranges
// and ranges outside the resource are rejected with domain.ErrInvalidRange.
func ParseRange(header string, size int64) (ByteRange, error) {
	const unit = "bytes="

	header = strings.TrimSpace(header)
	if len(header) < len(unit) || !strings.EqualFold(header[:len(unit)], unit) {
		return ByteRange{}, fmt.Errorf("%w: unsupported unit in %q", domain.ErrInvalidRange, header)
	}
	spec := strings.TrimSpace(header[len(unit):])
	if strings.Contains(spec, ",") {
		return ByteRange{}, fmt.Errorf("%w: multiple ranges", domain.ErrInvalidRange)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: missing '-' in %q", domain.ErrInvalidRange, spec)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		return ByteRange{}, fmt.Errorf("%w: suffix ranges are not supported", domain.ErrInvalidRange)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, fmt.Errorf("%w: bad start %q", domain.ErrInvalidRange, first)
	}
	end := size - 1
	if last != "" {
		if end, err = strconv.ParseInt(last, 10, 64); err != nil {
			return ByteRange{}, fmt.Errorf("%w: bad end %q", domain.ErrInvalidRange, last)
		}
	}

	if start > end || end >= size {
		return ByteRange{}, fmt.Errorf("%w: %d-%d outside 0-%d", domain.ErrInvalidRange, start, end, size-1)
	}
	return ByteRange{Start: start, End: end}, nil
}
