package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/mining"
	"github.com/tmpim/krist/pkg/logging"
)

// Error codes that are not mining rejections
const (
	CodeInvalidParameter    = "invalid_parameter"
	CodeMissingParameter    = "missing_parameter"
	CodeAuthFailed          = "auth_failed"
	CodeRateLimitHit        = "rate_limit_hit"
	CodeServerError         = "server_error"
	CodeIdempotencyConflict = "idempotency_conflict"
)

// Error represents an API error
type Error struct {
	Status    int
	Code      string
	Message   string
	Parameter string
}

// NewError creates a new API error
func NewError(status int, code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// ErrInvalidParameter reports a malformed parameter
func ErrInvalidParameter(param string) *Error {
	return &Error{
		Status:    http.StatusBadRequest,
		Code:      CodeInvalidParameter,
		Message:   "Invalid parameter " + param,
		Parameter: param,
	}
}

// ErrMissingParameter reports an absent parameter
func ErrMissingParameter(param string) *Error {
	return &Error{
		Status:    http.StatusBadRequest,
		Code:      CodeMissingParameter,
		Message:   "Missing parameter " + param,
		Parameter: param,
	}
}

// ErrNotFound reports an unknown resource
func ErrNotFound(what string) *Error {
	return NewError(http.StatusNotFound, what+"_not_found", capitalise(what)+" not found")
}

func capitalise(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Code)
}

// Body is the JSON body of the error
func (e *Error) Body() gin.H {
	body := gin.H{
		"ok":      false,
		"error":   e.Code,
		"message": e.Message,
	}
	if e.Parameter != "" {
		body["parameter"] = e.Parameter
	}
	return body
}

var rejectionStatus = map[string]int{
	mining.CodeMiningDisabled:    http.StatusLocked,
	mining.CodeInvalidAddress:    http.StatusBadRequest,
	mining.CodeInvalidNonce:      http.StatusBadRequest,
	mining.CodeSolutionRejected:  http.StatusForbidden,
	mining.CodeSolutionDuplicate: http.StatusConflict,
}

// FromError maps any error to an API error. Unknown errors become
// server_error and are logged.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rej *mining.RejectionError
	if errors.As(err, &rej) {
		status, ok := rejectionStatus[rej.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		return &Error{
			Status:    status,
			Code:      rej.Code,
			Message:   rej.Message(),
			Parameter: rej.Parameter,
		}
	}

	if errors.Is(err, events.ErrInvalidToken) {
		return NewError(http.StatusForbidden, events.ErrInvalidToken.Error(), "Invalid websocket token")
	}

	logging.GetLogger().Error("Unhandled error", zap.Error(err))
	return NewError(http.StatusInternalServerError, CodeServerError, "Server error")
}

// Abort writes err as the response and stops the handler chain
func Abort(c *gin.Context, err error) {
	apiErr := FromError(err)
	c.AbortWithStatusJSON(apiErr.Status, apiErr.Body())
}
