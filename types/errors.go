package types

import "errors"

var (
	// ErrInvalidAmount means the paid amount matches no configured pack.
	ErrInvalidAmount = errors.New("payment amount matches no configured pack")
	// ErrUserNotFound means no account matched the payer identifier or email.
	ErrUserNotFound = errors.New("user account not found")
	// ErrAmbiguousEmail means an email lookup matched more than one account.
	ErrAmbiguousEmail = errors.New("email matches more than one account")
	// ErrMissingIdentifier means the notification carried neither an account
	// id nor an email.
	ErrMissingIdentifier = errors.New("missing payer identifier")
)
