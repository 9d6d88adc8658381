// Package frame turns transport lines into sensor values: it extracts the
// hex-encoded ciphertext after a marker, opens it, and parses the tagged
// decimal inside.
//
// Every failure is reported as an *Error carrying one of four kinds. The
// caller is expected to drop the line, whatever the kind.
package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Defaults used by the sensor firmware.
const (
	DefaultMarker = "Encrypted Hex:"
	DefaultTag    = "HR:"
)

// Kind classifies why a line was rejected.
type Kind int

const (
	KindMalformedFrame Kind = iota + 1
	KindAuthentication
	KindDecryption
	KindValueParse
)

func (k Kind) String() string {
	switch k {
	case KindMalformedFrame:
		return "malformed_frame"
	case KindAuthentication:
		return "authentication_failure"
	case KindDecryption:
		return "decryption_failure"
	case KindValueParse:
		return "value_parse_error"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrAuthentication = errors.New("authentication failure")
	ErrDecryption     = errors.New("decryption failure")
	ErrValueParse     = errors.New("value parse error")
)

// Error is the result of a rejected line.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindMalformedFrame:
		return ErrMalformedFrame
	case KindAuthentication:
		return ErrAuthentication
	case KindDecryption:
		return ErrDecryption
	case KindValueParse:
		return ErrValueParse
	default:
		return errors.New("unknown frame error")
	}
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// DecodeFrame extracts and hex-decodes the ciphertext following marker.
func DecodeFrame(line, marker string) ([]byte, error) {
	i := strings.Index(line, marker)
	if i < 0 {
		return nil, newError(KindMalformedFrame, "marker %q not found", marker)
	}

	payload := strings.TrimSpace(line[i+len(marker):])
	data, err := hex.DecodeString(payload)
	if err != nil {
		return nil, &Error{Kind: KindMalformedFrame, Err: err}
	}
	if len(data) == 0 {
		return nil, newError(KindMalformedFrame, "empty payload")
	}
	return data, nil
}

// ParseValue decodes a plaintext of the form <tag><decimal> into a finite
// float. Hexadecimal floats are rejected.
func ParseValue(plaintext []byte, tag string) (float64, error) {
	if !utf8.Valid(plaintext) {
		return 0, newError(KindValueParse, "plaintext is not valid UTF-8")
	}
	text := string(plaintext)
	if !strings.HasPrefix(text, tag) {
		return 0, newError(KindValueParse, "missing %q prefix", tag)
	}

	num := strings.TrimSpace(text[len(tag):])
	digits := strings.TrimLeft(num, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, newError(KindValueParse, "not a decimal number %q", num)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, &Error{Kind: KindValueParse, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(KindValueParse, "non-finite value %v", v)
	}
	return v, nil
}
