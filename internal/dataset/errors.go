package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("dataset not found")
	ErrBadRequest = errors.New("bad request")
	ErrUpstream   = errors.New("storage unavailable")
	ErrParse      = errors.New("csv parsing failed")

	ErrInvalidCategory = fmt.Errorf("%w: unknown category", ErrBadRequest)
	ErrInvalidFilename = fmt.Errorf("%w: invalid filename", ErrBadRequest)
	ErrMissingFile     = fmt.Errorf("%w: file is required", ErrBadRequest)
)

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
