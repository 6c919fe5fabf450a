package klv

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated          = errors.New("klv: truncated container")
	ErrMissingKey         = errors.New("klv: missing required key")
	ErrUnknownKey         = errors.New("klv: unknown key")
	ErrDuplicateKey       = errors.New("klv: duplicate key")
	ErrBadLength          = errors.New("klv: invalid value length")
	ErrOutOfRange         = errors.New("klv: value out of range")
	ErrUnknownCompression = errors.New("klv: unknown compression")
)

// ParseError reports why a container could not be read. Offset is the byte
// position of the offending triple, or -1 when the error is not positional.
type ParseError struct {
	Key    Key
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("parse container: %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("parse container: %s at offset %d: %v", e.Key, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
