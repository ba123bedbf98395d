package server

import (
	"errors"
	"net/http"
	"time"

	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	billingdomain "github.com/counselkit/letterflow/internal/billing/domain"
	commissiondomain "github.com/counselkit/letterflow/internal/commission/domain"
	coupondomain "github.com/counselkit/letterflow/internal/coupon/domain"
	letterdomain "github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/counselkit/letterflow/pkg/log"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	ClaimedBy string            `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time        `json:"claimed_at,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

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
		if status >= http.StatusInternalServerError {
			log.L(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(lastErr.Err),
			)
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

	// Claim conflicts carry the claimant so the reviewer UI can show who
	// holds the letter.
	var claimConflict *letterdomain.AlreadyClaimedError
	if errors.As(err, &claimConflict) {
		claimedAt := claimConflict.ClaimedAt
		return http.StatusConflict, errorPayload{
			Type:      "already_claimed",
			Message:   "letter is claimed by another reviewer",
			ClaimedBy: claimConflict.ClaimedBy.String(),
			ClaimedAt: &claimedAt,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, letterdomain.ErrNotOwner),
		errors.Is(err, letterdomain.ErrNotClaimOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, allowancedomain.ErrNoActiveAllowance),
		errors.Is(err, allowancedomain.ErrAllowanceExhausted):
		return http.StatusPaymentRequired, errorPayload{
			Type:    err.Error(),
			Message: "no letter credits available",
		}
	case errors.Is(err, letterdomain.ErrInvalidState),
		errors.Is(err, letterdomain.ErrNotClaimable),
		errors.Is(err, coupondomain.ErrCodeTaken):
		return http.StatusConflict, errorPayload{
			Type:    err.Error(),
			Message: "conflict",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Code: err.Error(), Message: "validation error"},
			},
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, letterdomain.ErrInvalidArgument),
		errors.Is(err, letterdomain.ErrEmptyContent),
		errors.Is(err, letterdomain.ErrEmptyReason),
		errors.Is(err, allowancedomain.ErrInvalidAmount),
		errors.Is(err, allowancedomain.ErrInvalidUser),
		errors.Is(err, coupondomain.ErrInvalidCode),
		errors.Is(err, coupondomain.ErrInvalidDiscount),
		errors.Is(err, coupondomain.ErrInvalidEmployee),
		errors.Is(err, commissiondomain.ErrInvalidEmployee),
		errors.Is(err, billingdomain.ErrInvalidSignature),
		errors.Is(err, billingdomain.ErrInvalidPayload),
		errors.Is(err, billingdomain.ErrInvalidEvent),
		errors.Is(err, billingdomain.ErrUnknownPlan):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, letterdomain.ErrLetterNotFound),
		errors.Is(err, coupondomain.ErrCouponNotFound),
		errors.Is(err, billingdomain.ErrUnknownProvider),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
