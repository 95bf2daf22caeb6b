package domain

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrHolderRequired   = errors.New("holder is required")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrInvalidOffset    = errors.New("invalid offset")
)
