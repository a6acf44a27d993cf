package apierror

import (
	"encoding/json"
	"net/http"
)

// Error codes returned by the API.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeOutcomeUnknown      = "OUTCOME_UNKNOWN"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`

	// ProductID names the product a stock or lookup error refers to.
	ProductID string `json:"productId,omitempty"`
	// IdempotencyKey lets the caller retry an order whose outcome is unknown.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// ToJSON converts the error to the {success:false, error:{...}} envelope.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(envelope{Success: false, Error: e})
	return data
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest creates a 400 error for unreadable requests.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, CodeBadRequest, message, "Malformed request")
}

// ValidationError creates a 400 error with validation details.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, CodeValidation, message, "Validation failed")
	e.Details = details
	return e
}

// InvalidRequest creates a 400 error for a well-formed but unacceptable order.
func InvalidRequest(message string) *Error {
	return newError(http.StatusBadRequest, CodeInvalidRequest, message, "Invalid request")
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message, "Authentication required")
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, message, "Resource not found")
}

// UserNotFound creates a 404 error for an unknown user.
func UserNotFound(message string) *Error {
	return newError(http.StatusNotFound, CodeUserNotFound, message, "User not found")
}

// ProductNotFound creates a 404 error naming the missing product.
func ProductNotFound(productID string) *Error {
	e := newError(http.StatusNotFound, CodeProductNotFound, "", "Product not found")
	e.ProductID = productID
	return e
}

// InsufficientStock creates a 400 error naming the product that ran out.
func InsufficientStock(productID string) *Error {
	e := newError(http.StatusBadRequest, CodeInsufficientStock, "", "Insufficient stock")
	e.ProductID = productID
	return e
}

// InsufficientBalance creates a 400 error for an unaffordable order.
func InsufficientBalance() *Error {
	return newError(http.StatusBadRequest, CodeInsufficientBalance, "", "Insufficient balance")
}

// StoreUnavailable creates a 503 error. Nothing was changed; the request may
// be retried.
func StoreUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, CodeStoreUnavailable, message,
		"Store temporarily unavailable, nothing was changed")
}

// OutcomeUnknown creates a 500 error for a commit that may have applied.
// Retrying with the returned key is safe.
func OutcomeUnknown(idempotencyKey string) *Error {
	e := newError(http.StatusInternalServerError, CodeOutcomeUnknown, "",
		"Order outcome is not confirmed; retry with the same Idempotency-Key")
	e.IdempotencyKey = idempotencyKey
	return e
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, CodeInternal, message, "An unexpected error occurred")
}
