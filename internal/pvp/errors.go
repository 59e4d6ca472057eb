package pvp

import (
	"errors"
	"fmt"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

// ParseError reports a response body that was not valid JSON or was missing
// required fields. The body has been written to CapturePath.
type ParseError struct {
	Path        string
	CapturePath string
	Err         error
}

func (e *ParseError) Error() string {
	if e.CapturePath == "" {
		return fmt.Sprintf("malformed response from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("malformed response from %s (body saved to %s): %v", e.Path, e.CapturePath, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
