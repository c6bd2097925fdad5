// Package http serves the dashboard JSON API.
//
// This file holds the builder used by every handler to write JSON bodies and
// the mapping from service errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"devopsdash/internal/core"
	"devopsdash/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse(payload any) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		payload:    payload,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write encodes the payload. A payload that cannot be encoded turns into a
// 500 with a generic error body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body, err := json.Marshal(b.payload)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		b.statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// errorBody is the shape of every error response. Remote failures also carry
// what Azure DevOps answered.
type errorBody struct {
	Error        string `json:"error"`
	RemoteStatus int    `json:"remoteStatus,omitempty"`
	RemoteBody   string `json:"remoteBody,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse(errorBody{Error: message}).Status(statusCode)
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// ErrorFor maps a service error to its response.
func ErrorFor(err error) *JSONResponseBuilder {
	if msg := core.MissingParametersMessage(err); msg != "" {
		return BadRequestError(msg)
	}
	// adapter timeouts arrive wrapped in *core.APIError
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorResponse(http.StatusGatewayTimeout, "upstream request timed out")
	}
	if apiErr, ok := core.AsAPIError(err); ok {
		return NewJSONResponse(errorBody{
			Error:        err.Error(),
			RemoteStatus: apiErr.StatusCode,
			RemoteBody:   apiErr.Body,
		}).Status(http.StatusBadGateway)
	}

	var br badRequest
	switch {
	case errors.As(err, &br):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrIterationNotFound), errors.Is(err, core.ErrMoveNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, services.ErrNoQuery),
		errors.Is(err, core.ErrNoWorkItems),
		errors.Is(err, core.ErrMissingPath),
		errors.Is(err, core.ErrMissingIteration),
		errors.Is(err, core.ErrBacklogGrid),
		errors.Is(err, core.ErrInvalidPatch):
		return BadRequestError(err.Error())
	default:
		return InternalServerError(err.Error())
	}
}
