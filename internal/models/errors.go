package models

import "errors"

var (
	// Validation: bad input, rejected before any state mutation.
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("payment request not found")

	// State: operation not valid for the current status.
	ErrInvalidState     = errors.New("invalid payment state")
	ErrConcurrentUpdate = errors.New("payment request was modified concurrently")

	// Authentication.
	ErrWrongPIN          = errors.New("incorrect PIN")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidCredential = errors.New("invalid credential")

	// Business.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExpired           = errors.New("payment request expired")

	// Collaborators.
	ErrVerifierUnavailable = errors.New("credential verifier unavailable")
	ErrVerifierRejected    = errors.New("credential verifier returned an error")
)
