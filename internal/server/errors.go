package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/internal/ratelimit"
	"github.com/smallbiznis/shelfpay/pkg/errs"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

func (v ValidationErrors) Unwrap() error {
	return errs.ErrInvalidRequest
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrUnauthorized = errs.Wrap(errs.ErrAuthentication, "unauthorized")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if c.GetBool(webhookRouteKey) && status == http.StatusUnauthorized {
			// Bad signatures are malformed requests from the gateway's view.
			status = http.StatusBadRequest
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	code := errs.Code(err)

	// A refund or payout against an order in the wrong state is a conflict
	// with current state, not a broken ledger.
	if errors.Is(err, orderdomain.ErrInvalidTransition) {
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict", Code: code}
	}

	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests", Code: "rate_limited"}
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found", Code: code}
	case errors.Is(err, errs.ErrAuthorizationDenied):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden", Code: code}
	case errors.Is(err, errs.ErrAuthentication):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized", Code: code}
	case errors.Is(err, errs.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, errorPayload{Type: "insufficient_funds", Message: "insufficient funds", Code: code}
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict", Code: code}
	case errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request", Code: code}
	case errors.Is(err, errs.ErrGateway):
		return http.StatusBadGateway, errorPayload{Type: "gateway_error", Message: "payment processor unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog returns the class and code logged for a failed request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && errors.Is(err, errs.ErrIntegrityViolation) {
		return "integrity_violation", err.Error()
	}
	return payload.Type, payload.Code
}
