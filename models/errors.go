package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by the ledger, escrow and settlement services. Callers
// wrap them with context and match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
	ErrGateway      = errors.New("gateway error")
	ErrSecurity     = errors.New("security error")
)

// Retryable gateway outcomes. Both wrap ErrGateway.
var (
	// ErrGatewayTimeout means the call did not complete in time; the outcome is
	// unknown and the eventual webhook stays authoritative.
	ErrGatewayTimeout = fmt.Errorf("%w: request timed out, outcome unknown", ErrGateway)
	// ErrNotVerified means the gateway does not (yet) report the order as paid.
	ErrNotVerified = fmt.Errorf("%w: payment not yet verified", ErrGateway)
)
