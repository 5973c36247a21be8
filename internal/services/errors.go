// Package services implements the sync engine and the pairing gate on top of
// the repo layer. This file centralizes the service-level error values so
// handlers can map them to HTTP results with errors.Is.
//
// Translation into status codes and user-facing messages happens in the
// handler layer.
package services

import (
	"errors"

	"github.com/instalist/instalist-server/internal/utils"
)

// Sync engine errors.
var (
	// ErrNotFound indicates the identity never existed in the group.
	ErrNotFound = errors.New("not found")

	// ErrGone indicates the identity existed and was deleted.
	ErrGone = errors.New("gone")

	// ErrConflict covers duplicate creates, creates after a delete and
	// writes older than the stored change time.
	ErrConflict = errors.New("conflict")

	// ErrInvalidDate is returned for malformed or future timestamps.
	ErrInvalidDate = utils.ErrInvalidTime

	// ErrUnresolvedReference indicates a reference field that does not point
	// at a live record of the target kind in the same group.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrUnknownKind is returned for a kind with no registered schema.
	ErrUnknownKind = errors.New("unknown kind")
)

// Pairing and device errors.
var (
	// ErrGroupNotFound indicates the group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrPairingRejected covers a wrong, consumed or missing pairing code.
	ErrPairingRejected = errors.New("pairing rejected")

	// ErrDeviceUnauthorized is returned when a paired device has not been
	// authorized to act for its group.
	ErrDeviceUnauthorized = errors.New("device not authorized")

	// ErrInvalidCredentials covers an unknown device or a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
