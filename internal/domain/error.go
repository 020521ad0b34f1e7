package domain

import (
	"errors"
	"fmt"
)

var (
	// Request-level errors
	ErrUnauthorized     = errors.New("sender is not allowed to use this bot")
	ErrInvalidURL       = errors.New("invalid url")
	ErrInvalidAlias     = errors.New("invalid alias")
	ErrNoURL            = errors.New("no url found")
	ErrDomainNotAllowed = errors.New("domain not allowed")

	// Shortener errors
	ErrTransient        = errors.New("transient shortener failure")
	ErrPermanent        = errors.New("permanent shortener failure")
	ErrAliasTaken       = errors.New("alias already exists")
	ErrRetriesExhausted = errors.New("shortener retries exhausted")
	ErrCircuitOpen      = errors.New("shortener circuit open")
)

// ShortenerError describes a failed call to the shortening API.
// Status is the HTTP status code, 0 for network-level failures.
type ShortenerError struct {
	Status    int
	Message   string
	Transient bool
	Err       error
}

func (e *ShortenerError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("shortener %s error (http %d): %s", kind, e.Status, msg)
	}
	return fmt.Sprintf("shortener %s error: %s", kind, msg)
}

func (e *ShortenerError) Unwrap() error { return e.Err }

// Is lets errors.Is match a ShortenerError against ErrTransient / ErrPermanent.
func (e *ShortenerError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrPermanent:
		return !e.Transient
	}
	return false
}
