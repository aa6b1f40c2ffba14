package provider

import (
	"errors"
	"fmt"

	"twquote/internal/httpx"
)

var (
	// ErrUnreachable covers transport failures, timeouts and non-2xx replies.
	ErrUnreachable = errors.New("provider unreachable")
	// ErrMalformed is a 2xx reply that does not have the expected shape.
	ErrMalformed = errors.New("provider response malformed")
	// ErrUnknownInstrument means the provider answered but has no usable record.
	ErrUnknownInstrument = errors.New("instrument unknown to provider")
	// ErrNoData is terminal: every provider in the chain failed.
	ErrNoData = errors.New("no data from any source")
)

// Unknown builds an ErrUnknownInstrument for code.
func Unknown(src Source, code string) error {
	return fmt.Errorf("%s: %s: %w", src, code, ErrUnknownInstrument)
}

// Malformed wraps a decode or shape problem.
func Malformed(src Source, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", src, fmt.Sprintf(format, args...), ErrMalformed)
}

// FromHTTP classifies an httpx error into the provider taxonomy.
func FromHTTP(src Source, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, httpx.ErrDecode) {
		return fmt.Errorf("%s: %v: %w", src, err, ErrMalformed)
	}
	return fmt.Errorf("%s: %v: %w", src, err, ErrUnreachable)
}

// Kind returns a short label for logs and attempt records.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownInstrument):
		return "instrument_unknown"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrNoData):
		return "no_data"
	default:
		return "unreachable"
	}
}
