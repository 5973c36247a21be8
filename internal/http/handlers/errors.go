// Package handlers defines the machine-readable error codes of the API and
// the mapping from service errors to HTTP results.
//
// Every error response carries one of these codes next to a human-readable
// message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "unresolved_reference",
//	  "message": "unresolved reference: unitUUID"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/kinds"
	"github.com/instalist/instalist-server/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeGone             = "gone"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Validation:
	ErrCodeInvalidData         = "invalid_data"
	ErrCodeInvalidUUID         = "invalid_uuid"
	ErrCodeInvalidDate         = "invalid_date"
	ErrCodeUnresolvedReference = "unresolved_reference"

	// Pairing and device authentication:
	ErrCodeGroupNotFound      = "group_not_found"
	ErrCodePairingRejected    = "pairing_rejected"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeDeviceUnauthorized = "device_unauthorized"
)

// errorMapping pairs a sentinel with its status and code. Order matters:
// the first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{kinds.ErrInvalidUUID, http.StatusBadRequest, ErrCodeInvalidUUID},
	{services.ErrInvalidDate, http.StatusBadRequest, ErrCodeInvalidDate},
	{services.ErrUnresolvedReference, http.StatusBadRequest, ErrCodeUnresolvedReference},
	{kinds.ErrInvalidData, http.StatusBadRequest, ErrCodeInvalidData},
	{services.ErrUnknownKind, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrGone, http.StatusGone, ErrCodeGone},
	{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
	{services.ErrGroupNotFound, http.StatusNotFound, ErrCodeGroupNotFound},
	{services.ErrPairingRejected, http.StatusForbidden, ErrCodePairingRejected},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials},
	{services.ErrDeviceUnauthorized, http.StatusForbidden, ErrCodeDeviceUnauthorized},
}

// statusFor returns the HTTP status and code for err. Unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr writes the envelope for err. Client errors surface the error text;
// internal errors are logged and replaced by a generic message.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		fail(c, status, code, "internal server error")
		return
	}
	fail(c, status, code, err.Error())
}
