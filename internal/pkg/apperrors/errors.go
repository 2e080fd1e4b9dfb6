package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrDecryption          ErrorType = "DECRYPTION_FAILED"
	ErrScopeDenied         ErrorType = "SCOPE_DENIED"
	ErrTenantNotFound      ErrorType = "TENANT_NOT_FOUND"
	ErrSlugConflict        ErrorType = "SLUG_CONFLICT"
	ErrProvisionTimeout    ErrorType = "PROVISIONING_TIMEOUT"
	ErrProvisionHTTP       ErrorType = "PROVISIONING_HTTP"
	ErrProvisionUnknown    ErrorType = "PROVISIONING_UNKNOWN"
	ErrBridgeTimeout       ErrorType = "BRIDGE_TIMEOUT"
	ErrBridgeHTTP          ErrorType = "BRIDGE_HTTP"
	ErrBridgeUnknown       ErrorType = "BRIDGE_UNKNOWN"
	ErrInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
	ErrNotFound            ErrorType = "NOT_FOUND"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// NewDecryption marks ciphertext/key corruption. Callers must propagate it;
// treating it as a missing credential would mask data corruption.
func NewDecryption(msg string, cause error) *AppError {
	return New(ErrDecryption, msg, cause)
}

func NewScopeDenied(msg string) *AppError {
	return New(ErrScopeDenied, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsKind reports whether err is an AppError of the given type.
func IsKind(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrScopeDenied:
		return http.StatusForbidden
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrTenantNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrSlugConflict:
		return http.StatusConflict
	case ErrBridgeTimeout, ErrProvisionTimeout:
		return http.StatusGatewayTimeout
	case ErrBridgeHTTP, ErrBridgeUnknown, ErrProvisionHTTP, ErrProvisionUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrScopeDenied:
		return "Check the account, pair and exchange against your allowed scope."
	case ErrSlugConflict:
		return "Rename the client so its derived account name is unique."
	case ErrProvisionTimeout, ErrProvisionHTTP, ErrProvisionUnknown:
		return "Re-run provisioning via POST /v1/credentials/reinitialize."
	case ErrBridgeTimeout:
		return "The execution service did not answer in time; the action state is indeterminate."
	case ErrDecryption:
		return "Verify the vault master secret; do not overwrite stored credentials."
	default:
		return ""
	}
}
