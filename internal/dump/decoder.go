// Package dump decodes third-party dataset exports into records, one at a
// time, so arbitrarily large dumps are processed in constant memory.
package dump

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/JonMunkholm/eddb-ingest/internal/record"
)

// Format is the encoding of a dump file.
type Format int

const (
	// FormatJSON accepts either one top-level array of objects or a stream
	// of objects (JSON Lines).
	FormatJSON Format = iota
	// FormatCSV is comma-separated with a header row naming the fields.
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseError reports a malformed dump. Index is the zero-based position of
// the offending record, or -1 when the failure is not tied to one.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed dump: %v", e.Err)
	}
	return fmt.Sprintf("malformed dump at record %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decoder yields records in dump order. Next returns io.EOF after the last
// record.
type Decoder interface {
	Next() (record.Record, error)
}

// NewDecoder returns a decoder for r in format f.
func NewDecoder(r io.Reader, f Format) (Decoder, error) {
	switch f {
	case FormatJSON:
		return newJSONDecoder(r), nil
	case FormatCSV:
		return newCSVDecoder(r), nil
	default:
		return nil, fmt.Errorf("unsupported dump format: %s", f)
	}
}

type jsonDecoder struct {
	br      *bufio.Reader
	dec     *json.Decoder
	started bool
	array   bool
	done    bool
	index   int
}

func newJSONDecoder(r io.Reader) *jsonDecoder {
	return &jsonDecoder{br: bufio.NewReader(r)}
}

func (d *jsonDecoder) Next() (record.Record, error) {
	if d.done {
		return nil, io.EOF
	}
	if !d.started {
		if err := d.start(); err != nil {
			d.done = true
			return nil, err
		}
	}

	if d.array && !d.dec.More() {
		d.done = true
		if _, err := d.dec.Token(); err != nil {
			return nil, &ParseError{Index: d.index, Err: err}
		}
		return nil, io.EOF
	}

	var rec record.Record
	if err := d.dec.Decode(&rec); err != nil {
		d.done = true
		if err == io.EOF && !d.array {
			return nil, io.EOF
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ParseError{Index: d.index, Err: err}
	}
	if rec == nil {
		d.done = true
		return nil, &ParseError{Index: d.index, Err: errors.New("null record")}
	}

	d.index++
	return rec, nil
}

// start peeks at the first significant byte to tell an array dump from a
// stream of objects. An empty body is an empty dump.
func (d *jsonDecoder) start() error {
	d.started = true

	for {
		b, err := d.br.ReadByte()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return &ParseError{Index: -1, Err: err}
		}
		if unicode.IsSpace(rune(b)) {
			continue
		}
		if err := d.br.UnreadByte(); err != nil {
			return &ParseError{Index: -1, Err: err}
		}
		d.array = b == '['
		break
	}

	d.dec = json.NewDecoder(d.br)
	d.dec.UseNumber()

	if d.array {
		if _, err := d.dec.Token(); err != nil {
			return &ParseError{Index: -1, Err: err}
		}
	}
	return nil
}

// numericCell matches CSV cells that are valid JSON number literals. Anything
// else, such as "007" or "+5", stays a string so the record still encodes.
var numericCell = regexp.MustCompile(`^-?(0|[1-9]\d*)(\.\d+)?([eE][+-]?\d+)?$`)

// textColumns are never coerced to numbers; the normalizer and the store
// read them as strings.
var textColumns = map[string]bool{
	record.FieldName:      true,
	record.FieldNameLower: true,
}

type csvDecoder struct {
	r      *csv.Reader
	header []string
	index  int
}

func newCSVDecoder(r io.Reader) *csvDecoder {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	return &csvDecoder{r: cr}
}

func (d *csvDecoder) Next() (record.Record, error) {
	if d.header == nil {
		row, err := d.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, &ParseError{Index: -1, Err: err}
		}
		d.header = make([]string, len(row))
		for i, h := range row {
			d.header[i] = strings.ToLower(strings.TrimSpace(h))
		}
	}

	row, err := d.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &ParseError{Index: d.index, Err: err}
	}

	rec := make(record.Record, len(row))
	for i, cell := range row {
		if cell == "" || d.header[i] == "" {
			continue
		}
		if !textColumns[d.header[i]] && numericCell.MatchString(cell) {
			rec[d.header[i]] = json.Number(cell)
		} else {
			rec[d.header[i]] = cell
		}
	}

	d.index++
	return rec, nil
}
