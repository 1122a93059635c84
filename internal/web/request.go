// Package web holds the request and response helpers shared by handlers
// built on [mux.Router].
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adamwoolhether/courier/internal/web/errs"
)

// Param returns the path parameter key.
func Param(r *http.Request, key string) (string, error) {
	val := r.PathValue(key)
	if val == "" {
		return "", errs.NewFieldError(key, fmt.Errorf("path param[%s] not found", key))
	}

	return val, nil
}

// ParamInt parses the path parameter key as an int.
func ParamInt(r *http.Request, key string) (int, error) {
	val, err := Param(r, key)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, errs.NewFieldError(key, fmt.Errorf("must be an integer: %w", err))
	}

	return v, nil
}

// ParamFloat parses the path parameter key as a float64.
func ParamFloat(r *http.Request, key string) (float64, error) {
	val, err := Param(r, key)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errs.NewFieldError(key, fmt.Errorf("must be a number: %w", err))
	}

	return v, nil
}

// QueryInt parses the query parameter key as an int, returning def when
// it is absent.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def, nil
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, errs.NewFieldError(key, fmt.Errorf("must be an integer: %w", err))
	}

	return v, nil
}

// Decode reads a JSON document from the request body into val and
// validates it.
func Decode[T any](r *http.Request, val *T) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return errs.New(http.StatusBadRequest, fmt.Errorf("decode: %w", err))
	}

	return Validate(val)
}
