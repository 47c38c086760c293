package dump

// reader.go wraps a remote dump body before decoding:
//
//   - gzip is unwrapped when the source file name ends in .gz
//   - a UTF-8 BOM is dropped (some CSV exports carry one)
//   - invalid UTF-8 is replaced with U+FFFD so the CSV path matches what
//     encoding/json does for JSON strings
//   - bytes are counted for the ingestion metrics

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CountingReader tracks the number of bytes read through it.
type CountingReader struct {
	reader io.Reader
	n      atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n.Add(int64(n))
	return n, err
}

// BytesRead returns the total bytes read so far.
func (r *CountingReader) BytesRead() int64 {
	return r.n.Load()
}

// Open prepares body for decoding. The returned closer releases the gzip
// reader, if any; it does not close body.
func Open(body io.Reader, name string) (io.Reader, io.Closer, error) {
	var r io.Reader = body
	var closer io.Closer = io.NopCloser(nil)

	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, &ParseError{Index: -1, Err: err}
		}
		r = gz
		closer = gz
	}

	return &utf8Sanitizer{br: skipBOM(r)}, closer, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) *bufio.Reader {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(utf8BOM))
	if bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer copies runes from br, replacing each invalid byte with
// utf8.RuneError. pending holds the tail of a rune that did not fit in p.
type utf8Sanitizer struct {
	br      *bufio.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.pending) > 0 {
			c := copy(p[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}

		// Stop at a buffer boundary rather than block with data in hand.
		if n > 0 && s.br.Buffered() == 0 {
			break
		}

		r, size, err := s.br.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if size == 1 && r != utf8.RuneError {
			p[n] = byte(r)
			n++
			continue
		}
		s.pending = utf8.AppendRune(s.pending[:0], r)
	}
	return n, nil
}
