package repository

import "errors"

// Sentinel kinds for shot storage errors.
var (
	ErrStorage      = errors.New("shot storage failed")
	ErrInvalidLimit = errors.New("invalid shot list limit")
)
