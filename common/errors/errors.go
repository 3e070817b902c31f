package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Kind classifies an application error so callers can branch on it
// without string matching.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindProductNotFound     Kind = "PRODUCT_NOT_FOUND"
	KindOutOfStock          Kind = "OUT_OF_STOCK"
	KindAlreadyPaid         Kind = "ALREADY_PAID"
	KindPaymentNotCompleted Kind = "PAYMENT_NOT_COMPLETED"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindInvalidSignature    Kind = "INVALID_SIGNATURE"
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindInternal            Kind = "INTERNAL"
)

// Error represents an application error
type Error struct {
	Code    int                    `json:"code"`
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code int, kind Kind, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, KindValidation, message, nil)
}

func ProductNotFound(productID string) *Error {
	e := New(http.StatusNotFound, KindProductNotFound, "Product not found", nil)
	e.Details = map[string]interface{}{"product_id": productID}
	return e
}

// OutOfStock carries the remediation data the client needs to reduce the
// requested quantity.
func OutOfStock(productID string, available int) *Error {
	e := New(http.StatusConflict, KindOutOfStock,
		fmt.Sprintf("Not enough inventory for product %s: %d available", productID, available), nil)
	e.Details = map[string]interface{}{"product_id": productID, "available": available}
	return e
}

func AlreadyPaid(orderID string) *Error {
	e := New(http.StatusConflict, KindAlreadyPaid, "Order is already paid", nil)
	e.Details = map[string]interface{}{"order_id": orderID}
	return e
}

func PaymentNotCompleted(status string) *Error {
	e := New(http.StatusPaymentRequired, KindPaymentNotCompleted, "Payment not completed", nil)
	e.Details = map[string]interface{}{"status": status}
	return e
}

func ProviderUnavailable(err error) *Error {
	return New(http.StatusServiceUnavailable, KindProviderUnavailable, "Payment could not be completed", err)
}

func InvalidSignature(err error) *Error {
	return New(http.StatusBadRequest, KindInvalidSignature, "Invalid webhook signature", err)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, KindNotFound, message, nil)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, KindForbidden, message, nil)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, KindConflict, message, nil)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, KindUnauthorized, message, nil)
}

func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, KindInternal, message, err)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if appErr, ok := As(err); ok {
		return appErr.Kind == kind
	}
	return false
}

// response is the body written for failed requests. Internal causes are never
// serialized.
type response struct {
	Success bool                   `json:"success"`
	Error   Kind                   `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Render writes err as a JSON error response. Anything that is not an *Error
// is reported as an internal error.
func Render(c *gin.Context, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = Internal("Internal server error", err)
	}
	c.AbortWithStatusJSON(appErr.Code, response{
		Success: false,
		Error:   appErr.Kind,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// ErrorMiddleware renders the last error attached with c.Error and logs
// server-side failures.
func ErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := As(err)
		switch {
		case !ok || appErr.Code >= http.StatusInternalServerError:
			logger.Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("request_id")),
				zap.Error(err),
			)
		case appErr.Kind == KindInvalidSignature:
			logger.Error("rejected webhook with invalid signature",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
		Render(c, err)
	}
}
