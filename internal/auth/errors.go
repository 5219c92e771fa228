package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrAuthFailure is the parent of every credential failure. Callers that
	// only need "login failed" compare against it.
	ErrAuthFailure = errors.New("auth: authentication failed")

	ErrEmailNotFound     = fmt.Errorf("%w: email not registered", ErrAuthFailure)
	ErrInvalidCredential = fmt.Errorf("%w: incorrect password", ErrAuthFailure)
	ErrNoCredentialSet   = fmt.Errorf("%w: account has no password set", ErrAuthFailure)
)
