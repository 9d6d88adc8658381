// Package csv reads a column of sensor values from CSV recordings, used to
// replay a session through the sealer.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Reader reads one numeric column from a CSV file.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	column    int
	name      string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithColumn selects the value column by index. Defaults to 0.
func WithColumn(i int) Option {
	return func(r *Reader) {
		r.column = i
	}
}

// WithColumnName selects the value column by header name. It implies a
// header row.
func WithColumnName(name string) Option {
	return func(r *Reader) {
		r.name = name
		r.hasHeader = true
	}
}

// NewReader opens filename.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := newReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// FromReader reads CSV from src, which the caller closes.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, opts...)
}

func newReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
	}
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}
	if r.column < 0 {
		return nil, fmt.Errorf("column index %d is negative", r.column)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, err
		}
		r.headers = headers
	}

	if r.name != "" {
		r.column = -1
		for i, h := range r.headers {
			if strings.EqualFold(strings.TrimSpace(h), r.name) {
				r.column = i
				break
			}
		}
		if r.column < 0 {
			return nil, fmt.Errorf("column %q not found", r.name)
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns every value in the selected column. Rows whose cell is
// missing or not a finite number are skipped.
func (r *Reader) Read() ([]float64, error) {
	var data []float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		v, err := r.parse(record)
		if err != nil {
			continue // Skip malformed rows
		}
		data = append(data, v)
	}

	return data, nil
}

// Stream returns a channel of values for paced replay.
func (r *Reader) Stream(ctx context.Context) (<-chan float64, error) {
	out := make(chan float64, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				record, err := r.reader.Read()
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					continue
				}
				if err != nil {
					return
				}

				v, err := r.parse(record)
				if err != nil {
					continue
				}

				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Reader) parse(record []string) (float64, error) {
	if r.column >= len(record) {
		return 0, errors.New("missing column")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[r.column]), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("non-finite value")
	}
	return v, nil
}
