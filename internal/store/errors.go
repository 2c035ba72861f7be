package store

import "errors"

var (
	// ErrDuplicateCredential rejects an add whose credential string is
	// byte-for-byte identical to an existing account's.
	ErrDuplicateCredential = errors.New("an account with this credential already exists")

	// ErrDuplicateEmail rejects an add reusing an existing account's email.
	ErrDuplicateEmail = errors.New("an account with this email already exists")

	// ErrAccountNotFound reports an unknown account ID.
	ErrAccountNotFound = errors.New("account not found")
)
