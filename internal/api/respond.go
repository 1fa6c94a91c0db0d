package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/gas-agency/internal/domain/errs"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeValidationFailed   = "validation_failed"
	codeInvalidDate        = "invalid_date"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeIdempotencyBusy    = "idempotency_in_progress"
	codeUnavailable        = "unavailable"
	codeInternalError      = "internal_error"
)

const maxBodyBytes = 1 << 20

// statusByCode maps domain error codes to HTTP statuses. Codes not listed
// fall back to their category in statusFor.
var statusByCode = map[string]int{
	// identity
	"invalid_credential":  http.StatusUnauthorized,
	"session_expired":     http.StatusUnauthorized,
	"session_not_found":   http.StatusUnauthorized,
	"account_deactivated": http.StatusForbidden,
	"duplicate_identity":  http.StatusConflict,
	"weak_credential":     http.StatusBadRequest,
	"invalid_username":    http.StatusBadRequest,

	// stock
	"insufficient_stock":     http.StatusConflict,
	"capacity_exceeded":      http.StatusConflict,
	"agency_exists":          http.StatusConflict,
	"invalid_agency":         http.StatusBadRequest,
	"invalid_capacity":       http.StatusBadRequest,
	"invalid_stock_quantity": http.StatusBadRequest,

	// workflow
	"invalid_transition": http.StatusConflict,
	"invalid_quantity":   http.StatusBadRequest,
	"invalid_status":     http.StatusBadRequest,
}

func statusFor(de *errs.Error) int {
	if status, ok := statusByCode[de.Code]; ok {
		return status
	}
	switch de.Category {
	case errs.CategoryNotFound:
		return http.StatusNotFound
	case errs.CategoryIdentity:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorResponse{Error: msg, Code: code})
}

// respondError writes err as a JSON error. Domain failures keep their code and
// message; anything else is logged and reported as internal_error.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var de *errs.Error
	if errors.As(err, &de) {
		writeError(w, statusFor(de), de.Code, de.Message)
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and returns false when the request should stop.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handlers) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.DebugContext(r.Context(), "validation failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, codeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
