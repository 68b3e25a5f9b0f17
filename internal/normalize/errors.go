package normalize

import (
	"errors"
	"fmt"
)

// ErrEmptyFile is wrapped by a ParseError when the input holds no CSV record.
var ErrEmptyFile = errors.New("empty file")

// ErrNotDetected is wrapped by a DetectionError when the detector had no
// guess at all.
var ErrNotDetected = errors.New("no encoding guess")

// DetectionError reports that no usable encoding guess could be made.
type DetectionError struct {
	Label      string // best guess, if any
	Confidence int
	Err        error
}

func (e *DetectionError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("encoding detection failed: best guess %q at confidence %d: %v", e.Label, e.Confidence, e.Err)
	}
	return fmt.Sprintf("encoding detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// EncodingError reports a decode or encode failure in strict conversion.
type EncodingError struct {
	Label  string // encoding being decoded from or encoded to
	Offset int    // byte offset of the first bad byte, -1 if unknown
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("encoding error: %s: invalid byte at offset %d: %v", e.Label, e.Offset, e.Err)
	}
	return fmt.Sprintf("encoding error: %s: %v", e.Label, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ParseError reports malformed CSV. Line is 1-based; 0 when not applicable.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
