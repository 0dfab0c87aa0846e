package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	"github.com/mentorhive/mentorhive/internal/commission"
	disputedomain "github.com/mentorhive/mentorhive/internal/dispute/domain"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	refunddomain "github.com/mentorhive/mentorhive/internal/refund/domain"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
	transferdomain "github.com/mentorhive/mentorhive/internal/transfer/domain"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, bookingdomain.ErrMissingIdentity):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, walletdomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient wallet balance",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, transferdomain.ErrProviderDown):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
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
		errors.Is(err, bookingdomain.ErrInvalidBookingID),
		errors.Is(err, bookingdomain.ErrInvalidMentor),
		errors.Is(err, bookingdomain.ErrInvalidService),
		errors.Is(err, bookingdomain.ErrInvalidScheduleTime),
		errors.Is(err, bookingdomain.ErrInvalidAmount),
		errors.Is(err, bookingdomain.ErrInvalidCurrency),
		errors.Is(err, bookingdomain.ErrInvalidPaymentMethod),
		errors.Is(err, bookingdomain.ErrInvalidDuration),
		errors.Is(err, disputedomain.ErrMissingReason),
		errors.Is(err, disputedomain.ErrInvalidDecision),
		errors.Is(err, disputedomain.ErrInvalidPartialAmount),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrMissingReference),
		errors.Is(err, commission.ErrInvalidTier):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, bookingdomain.ErrNotParticipant),
		errors.Is(err, disputedomain.ErrNotStudent),
		errors.Is(err, disputedomain.ErrNotMentor):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, bookingdomain.ErrInvalidTransition),
		errors.Is(err, bookingdomain.ErrNotPaid),
		errors.Is(err, bookingdomain.ErrCancellationWindow),
		errors.Is(err, bookingdomain.ErrAlreadyCancelled),
		errors.Is(err, bookingdomain.ErrAlreadyCompleted),
		errors.Is(err, bookingdomain.ErrPaymentMethodMismatch),
		errors.Is(err, disputedomain.ErrBookingNotDisputable),
		errors.Is(err, disputedomain.ErrWindowClosed),
		errors.Is(err, disputedomain.ErrAlreadyDisputed),
		errors.Is(err, disputedomain.ErrAlreadyResponded),
		errors.Is(err, disputedomain.ErrNotActive),
		errors.Is(err, disputedomain.ErrAlreadyResolved),
		errors.Is(err, refunddomain.ErrRefundAlreadyExists),
		errors.Is(err, refunddomain.ErrNothingToRefund),
		errors.Is(err, settlementdomain.ErrNotSettleable),
		errors.Is(err, settlementdomain.ErrWindowOpen),
		errors.Is(err, settlementdomain.ErrDisputed),
		errors.Is(err, settlementdomain.ErrAlreadyClaimed),
		errors.Is(err, settlementdomain.ErrAlreadySettled),
		errors.Is(err, settlementdomain.ErrColdMessageState),
		errors.Is(err, earningsdomain.ErrNoPayoutAccount),
		errors.Is(err, transferdomain.ErrAccountNotReady),
		errors.Is(err, transferdomain.ErrProviderRejected):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, disputedomain.ErrNotFound),
		errors.Is(err, refunddomain.ErrRefundNotFound),
		errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, earningsdomain.ErrMentorNotFound),
		errors.Is(err, transferdomain.ErrAccountNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
