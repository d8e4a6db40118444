package stream

import (
	"fmt"
	"regexp"
	"strconv"
)

// ByteRange is the inclusive serving window resolved from a Range
// header against a known total size.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for a 206 reply.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ErrUnsatisfiable marks a syntactically or semantically invalid range
// request. Callers answer it with 416 and "bytes */<total>".
type ErrUnsatisfiable struct {
	Header string
}

func (e *ErrUnsatisfiable) Error() string {
	return fmt.Sprintf("unsatisfiable range %q", e.Header)
}

// UnsatisfiableContentRange is the Content-Range value for a 416 reply.
func UnsatisfiableContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// ParseRange resolves a Range header against the resource size.
// A nil result with nil error means no range was requested and the
// caller serves the full resource. Supported forms are bytes=N-M,
// bytes=N- (open ended) and bytes=-N (last N bytes, N > 0).
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	match := rangePattern.FindStringSubmatch(header)
	if match == nil {
		return nil, &ErrUnsatisfiable{Header: header}
	}
	startStr, endStr := match[1], match[2]

	if startStr == "" && endStr == "" {
		return nil, &ErrUnsatisfiable{Header: header}
	}

	var start, end int64
	if startStr == "" {
		// Suffix form: the last N bytes of the resource.
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix == 0 {
			return nil, &ErrUnsatisfiable{Header: header}
		}
		start = size - suffix
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		var err error
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, &ErrUnsatisfiable{Header: header}
		}
		if endStr == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, &ErrUnsatisfiable{Header: header}
			}
		}
	}

	if start < 0 || end < 0 || start > end || start >= size {
		return nil, &ErrUnsatisfiable{Header: header}
	}
	if end > size-1 {
		end = size - 1
	}
	return &ByteRange{Start: start, End: end}, nil
}
