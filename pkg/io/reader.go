// Package io provides the transports that deliver sensor lines.
package io

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
)

// MaxLineLength bounds a single transport line. Longer lines are dropped.
const MaxLineLength = 64 * 1024

// Source is a sensor transport producing text lines.
type Source interface {
	// Stream returns a channel of lines. It is closed when the transport
	// ends, fails, or ctx is done.
	Stream(ctx context.Context) (<-chan string, error)

	// Close releases resources.
	Close() error
}

// ReaderSource reads lines from any byte stream: a file, stdin, or an
// opened serial port.
type ReaderSource struct {
	r      io.Reader
	closer io.Closer
	err    error
}

// NewReaderSource wraps r. If r is an io.Closer, Close closes it.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFile returns a source reading the file at path.
func OpenFile(path string) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReaderSource(f), nil
}

// Stream starts reading in the background.
func (s *ReaderSource) Stream(ctx context.Context) (<-chan string, error) {
	if s.r == nil {
		return nil, errors.New("source not initialized")
	}

	out := make(chan string, 256)
	go func() {
		defer close(out)
		s.err = ScanLines(ctx, s.r, out)
	}()
	return out, nil
}

// Err returns the error that ended the stream, if any. It is only
// meaningful after the stream channel has been closed.
func (s *ReaderSource) Err() error { return s.err }

// Close releases the underlying reader.
func (s *ReaderSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// ScanLines reads r and sends each non-empty line on out, trimmed and with
// invalid UTF-8 removed. Reads returning no data and no error, as serial
// ports do on timeout, only give ctx a chance to end the scan. It returns
// nil on EOF.
func ScanLines(ctx context.Context, r io.Reader, out chan<- string) error {
	buf := make([]byte, 4096)
	var pending []byte
	overflow := false

	emit := func(line []byte) bool {
		text := strings.TrimSpace(strings.ToValidUTF8(string(line), ""))
		if text == "" {
			return true
		}
		select {
		case out <- text:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := r.Read(buf)
		data := buf[:n]
		for len(data) > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				pending = append(pending, data...)
				if len(pending) > MaxLineLength {
					pending, overflow = pending[:0], true
				}
				break
			}
			pending = append(pending, data[:i]...)
			if !overflow && !emit(pending) {
				return ctx.Err()
			}
			pending, overflow = pending[:0], false
			data = data[i+1:]
		}

		if errors.Is(err, io.EOF) {
			if !overflow && !emit(pending) {
				return ctx.Err()
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
