package services

import "errors"

// Domain errors surfaced by the ledger and workflow services. Handlers map
// these onto HTTP statuses; everything else is treated as infrastructure
// failure and becomes a 500.
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrCrossTenantViolation   = errors.New("sender and receiver belong to different tenants")
	ErrSelfTransfer           = errors.New("cannot transfer to the same account")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotRequester           = errors.New("only the original requester may cancel")
	ErrNotAuthorized          = errors.New("caller is not authorized for this operation")
	ErrAccountNotFound        = errors.New("account not found")
	ErrRequestNotFound        = errors.New("transfer request not found")
)

// Alert triage errors.
var (
	ErrAlertNotFound = errors.New("alert not found")
)
