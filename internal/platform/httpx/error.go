// Package httpx defines the JSON error envelope shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopcore/api/internal/platform/requestctx"
)

// Error is the error payload returned to API clients. Code is a stable
// machine-readable identifier; Message is a human-readable explanation.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an Error, clamping code and message to sane lengths.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clamp(code, 80),
		Message: clamp(message, 512),
		Status:  status,
	}
}

// WriteError renders the error as JSON, enriched with the request and trace
// identifiers carried by the context.
func WriteError(ctx context.Context, w http.ResponseWriter, apiErr Error) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   apiErr.Code,
		"message": apiErr.Message,
		"status":  status,
	}
	if requestID := clamp(middleware.GetReqID(ctx), 80); requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID := clamp(requestctx.TraceID(ctx), 64); traceID != "" {
		payload["trace_id"] = traceID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clamp strips newlines and truncates the value so error payloads stay
// log-safe and bounded.
func clamp(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
