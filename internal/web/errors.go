package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical detail and the request ID (server-side)
//   - Mapped via core.MapError to a user-friendly message and code
//   - Rendered for the client as JSON (API), an alert fragment (HTMX) or
//     an error page

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvclean/internal/core"
	"github.com/JonMunkholm/csvclean/internal/normalize"
	"github.com/JonMunkholm/csvclean/internal/web/templates"
)

// ErrorResponse is the JSON body of API error responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError logs err and writes the mapped user message in the format
// the client expects. A zero statusCode is derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)
	requestID := middleware.GetReqID(r.Context())

	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", requestID,
	)

	switch {
	case wantsJSON(r):
		respondErrorJSON(w, userMsg, requestID, statusCode)
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode)
	default:
		renderErrorPage(w, r, userMsg, statusCode)
	}
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, requestID string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: requestID,
	})
}

func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

func renderErrorPage(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorPage(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var (
		detErr   *normalize.DetectionError
		encErr   *normalize.EncodingError
		parseErr *normalize.ParseError
	)
	switch {
	case errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrEmptyUpload), errors.Is(err, errNoFile), errors.Is(err, errInvalidForm):
		return http.StatusBadRequest
	case errors.As(err, &detErr), errors.As(err, &encErr), errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers a JSON response. API routes
// always get JSON.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
