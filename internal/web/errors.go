package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request id, then
// returned to the client as the mapped core.UserMessage. The HTTP status is
// derived from the sentinel the error wraps.

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/transitwatch/internal/backend"
	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
	"github.com/JonMunkholm/transitwatch/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// newErrorResponse maps err to its response body.
func newErrorResponse(err error) ErrorResponse {
	msg := core.MapError(err)
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}

	var ue *core.UserError
	var rejected *importer.RejectedError
	switch {
	case errors.As(err, &ue):
		resp.Details = ue.Details
	case errors.As(err, &rejected):
		resp.Details = rejected.Problems
	}
	return resp
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrBinarySpreadsheet):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrNoValidRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, importer.ErrImportNotFound),
		errors.Is(err, backend.ErrUnknownGroup):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrNoFixture):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrFileRejected),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrInvalidMode),
		errors.Is(err, core.ErrBadParameter):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and writes the
// user-friendly JSON body with the status err maps to.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := newErrorResponse(err)

	log := logging.WithFields(r.Context(),
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", resp.Code,
	)
	if status >= http.StatusInternalServerError {
		log.Error("request error", "error", err)
	} else {
		log.Warn("request error", "error", err)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
