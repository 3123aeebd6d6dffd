package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/passes"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/scan"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	errBadRequest  = errors.New("bad request")
	errNotFound    = errors.New("not found")
	errUnavailable = errors.New("unavailable")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
}

// clientErrors are answered with 400 and their message.
var clientErrors = []error{
	errBadRequest,
	config.ErrInvalidScenario,
	propagation.ErrInvalidRequest,
	propagation.ErrInvalidOrbit,
	tle.ErrMalformedRecord,
	transform.ErrInvalidEpoch,
	transform.ErrUnsupportedFrame,
	passes.ErrInvalidTimeSpan,
	passes.ErrInvalidOptions,
	visibility.ErrInvalidMask,
	visibility.ErrInvalidStation,
	scan.ErrTooManyPoints,
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the status for err. Server errors are logged and
// their detail withheld.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request timed out"
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads one JSON object into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
