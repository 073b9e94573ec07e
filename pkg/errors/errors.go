package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"

	CodeNotOwner           = "NOT_OWNER"
	CodeListingUnavailable = "LISTING_UNAVAILABLE"
	CodeSelfTargeting      = "SELF_TARGETING"
	CodeAlreadyTargeting   = "ALREADY_TARGETING"
	CodeAuctionClosed      = "AUCTION_CLOSED"
	CodeCircularTargeting  = "CIRCULAR_TARGETING"
	CodeAlreadyResolved    = "ALREADY_RESOLVED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeRetryLater         = "RETRY_LATER"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NotOwner(message string) *AppError {
	return &AppError{
		Code:       CodeNotOwner,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func ListingUnavailable(message string) *AppError {
	return &AppError{
		Code:       CodeListingUnavailable,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func SelfTargeting() *AppError {
	return &AppError{
		Code:       CodeSelfTargeting,
		Message:    "a listing cannot target itself",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func AlreadyTargeting(sourceID, edgeID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyTargeting,
		Message:    "listing already targets another listing, retarget instead",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"source_listing_id": sourceID,
			"active_edge_id":    edgeID,
		},
	}
}

func AuctionClosed(listingID string) *AppError {
	return &AppError{
		Code:       CodeAuctionClosed,
		Message:    "auction deadline has passed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"listing_id": listingID},
	}
}

// CircularTargeting reports the listing ids that would form a cycle, starting at the target.
func CircularTargeting(cycle []string) *AppError {
	return &AppError{
		Code:       CodeCircularTargeting,
		Message:    "targeting would create a circular chain",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"cycle": cycle},
	}
}

func AlreadyResolved(edgeID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyResolved,
		Message:    "proposal is no longer active",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"edge_id": edgeID},
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("cannot transition from %s to %s", from, to),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"from": from,
			"to":   to,
		},
	}
}

func RetryLater(err error) *AppError {
	return &AppError{
		Code:       CodeRetryLater,
		Message:    "concurrent modification, retry the request",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
