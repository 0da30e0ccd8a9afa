package errors

import (
	"errors"
	"net/http"
)

// License-specific sentinel errors
var (
	ErrInvalidLicenseKey    = errors.New("invalid license key")
	ErrInvalidLicenseFormat = errors.New("invalid license key format")
	ErrMachineMismatch      = errors.New("license bound to a different machine")
	ErrTrialExpired         = errors.New("trial period expired")
	ErrClockTampered        = errors.New("system clock tampering detected")
	ErrLicenseNotFound      = errors.New("no license record found")
	ErrStorageUnavailable   = errors.New("license storage unavailable")
)

// License error codes for API responses
const (
	ErrCodeInvalidKey      = "INVALID_LICENSE_KEY"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeMachineMismatch = "MACHINE_MISMATCH"
	ErrCodeTrialExpired    = "TRIAL_EXPIRED"
	ErrCodeClockTampered   = "CLOCK_TAMPERED"
	ErrCodeNotFound        = "LICENSE_NOT_FOUND"
)

// LicenseAPIError maps a license sentinel error to an APIError renderer.
func LicenseAPIError(err error) *APIError {
	switch {
	case errors.Is(err, ErrInvalidLicenseFormat):
		return New(http.StatusBadRequest, ErrCodeInvalidFormat, "The license key format is invalid. Expected XXXX-XXXX-XXXX-XXXX")
	case errors.Is(err, ErrInvalidLicenseKey):
		return New(http.StatusBadRequest, ErrCodeInvalidKey, "The provided license key is not valid for this machine")
	case errors.Is(err, ErrMachineMismatch):
		return New(http.StatusForbidden, ErrCodeMachineMismatch, "This license is registered to a different machine")
	case errors.Is(err, ErrTrialExpired):
		return New(http.StatusForbidden, ErrCodeTrialExpired, "Your trial period has expired")
	case errors.Is(err, ErrClockTampered):
		return New(http.StatusForbidden, ErrCodeClockTampered, "System clock tampering was detected")
	case errors.Is(err, ErrLicenseNotFound):
		return New(http.StatusNotFound, ErrCodeNotFound, "No license record was found")
	default:
		return ErrInternalServer
	}
}
