package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/nsstatus/internal/api/response"
	"github.com/kiranshivaraju/nsstatus/internal/neuroscout"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", validationDetails(err))
		return false
	}
	return true
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		out[fe.Field()] = rule
	}
	return out
}

// writeUpstreamError maps Neuroscout client errors to HTTP responses.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, neuroscout.ErrNotFound):
		response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
	case errors.Is(err, neuroscout.ErrUpstreamTimeout):
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT",
			"Neuroscout did not respond in time", nil)
	case errors.Is(err, neuroscout.ErrUpstreamUnreachable):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"Neuroscout is not reachable", nil)
	case errors.Is(err, neuroscout.ErrUpstreamStatus):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR",
			"Neuroscout rejected the request", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
