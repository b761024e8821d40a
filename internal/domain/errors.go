package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownSection    = errors.New("unknown section")
	ErrEmptySection      = errors.New("section has no steps")
	ErrSessionComplete   = errors.New("session is complete")
	ErrSessionClosed     = errors.New("session is closed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyProductName  = errors.New("product name is required")
	ErrInvalidDeferral   = errors.New("deferral must be 1, 3 or 7 days")
	ErrNotImplemented    = errors.New("not implemented")
)
