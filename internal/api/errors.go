package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alecgard/taskhub/internal/apperr"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Field             string `json:"field,omitempty"`
	RetryAfter        *int   `json:"retry_after,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

var (
	errInvalidBody = apperr.Validation("invalid_body", "", "failed to parse request body")
	errNotAuthed   = apperr.Unauthorized("unauthorized", "not authenticated")
)

var validate = newValidator()

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindInvalidCode:
		return http.StatusBadRequest
	case apperr.KindRateLimited, apperr.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeAppError renders err using the error envelope. Errors that are not
// *apperr.Error are logged and reported as a generic internal error.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	detail := errorDetail{Code: e.Code, Message: e.Message, Field: e.Field}
	if e.Kind == apperr.KindRateLimited && e.RetryAfter > 0 {
		secs := retrySeconds(e.RetryAfter)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		detail.RetryAfter = &secs
	}
	if e.Kind == apperr.KindInvalidCode && e.Remaining >= 0 {
		n := e.Remaining
		detail.RemainingAttempts = &n
	}
	if e.Kind == apperr.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	writeJSON(w, statusFor(e.Kind), errorEnvelope{Error: detail})
}

// retrySeconds rounds d up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit, and runs
// struct validation. Failures are returned as validation errors.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(lr).Decode(v); err != nil {
		return errInvalidBody
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return errInvalidBody
	}
	return nil
}

// fieldError converts the first failed validation rule into an error naming
// the offending field.
func fieldError(fe validator.FieldError) *apperr.Error {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		msg = field + " is invalid"
	}
	return apperr.Validation("validation_error", field, msg)
}
