// Package repository defines error types that are reused across multiple
// repositories and the services built on them.  These sentinel values allow
// higher layers such as handlers and dispatch jobs to distinguish between
// different failure scenarios.  For example, ErrForbidden indicates that
// the caller does not own the medicine it is acting on, while
// ErrTransaction signals that an atomic write could not be committed and
// may be retried.
package repository

import "errors"

// ErrNotFound is returned when a medicine, schedule, user or inventory
// row does not exist.  Handlers should translate this into an HTTP 404
// response; dispatch jobs treat it as a terminal failure.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrTransaction is returned when a transaction could not be started or
// committed.  No write of the aborted unit is visible.  Handlers should
// translate this into an HTTP 503 response so the client can retry.
var ErrTransaction = errors.New("transaction failed")
