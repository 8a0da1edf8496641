package forecast

import "errors"

var (
	ErrScriptFailed  = errors.New("script failed")
	ErrScriptTimeout = errors.New("script timed out")
	ErrInvalidOutput = errors.New("script produced invalid output")
	ErrUnknownScript = errors.New("unknown script")

	ErrInvalidCity  = errors.New("invalid city name")
	ErrInvalidDate  = errors.New("dates must be formatted as YYYY-MM-DD")
	ErrInvalidModel = errors.New("invalid model type")
	ErrMissingField = errors.New("all fields are required")
	ErrNotFound     = errors.New("not found")
)
