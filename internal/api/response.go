package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flatroom/flat-server-go/internal/core"
)

// Response is the envelope every route answers with.
type Response struct {
	Status core.Status    `json:"status"`
	Code   core.ErrorCode `json:"code,omitempty"`
	Data   any            `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteSuccess answers a successful outcome. A nil data is sent as {}.
func WriteSuccess(w http.ResponseWriter, data any) {
	if data == nil {
		data = struct{}{}
	}
	WriteJSON(w, http.StatusOK, Response{Status: core.StatusSuccess, Data: data})
}

// WriteError answers a failed outcome.
func WriteError(w http.ResponseWriter, appErr *core.AppError) {
	WriteJSON(w, httpStatus(appErr), Response{Status: appErr.Status, Code: appErr.Code})
}

// HandleError converts err into an envelope. Errors that are not
// AppErrors are logged and answered as ServerFail.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := core.AsAppError(err)
	if appErr.Code == core.ErrCodeServerFail {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", w.Header().Get("X-Request-Id"),
			"error", err,
		)
	}
	WriteError(w, appErr)
}

func httpStatus(appErr *core.AppError) int {
	switch {
	case appErr.Status == core.StatusAuthFailed, appErr.Code == core.ErrCodeNeedLoginAgain:
		return http.StatusUnauthorized
	case appErr.Code == core.ErrCodeParamsCheckFailed:
		return http.StatusBadRequest
	case appErr.Code == core.ErrCodeServerFail:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) *core.AppError {
	if r.Body == nil {
		return core.NewParamsCheckFailed("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.NewParamsCheckFailed("request body too large")
		case errors.Is(err, io.EOF):
			return core.NewParamsCheckFailed("request body is required")
		default:
			return core.NewParamsCheckFailed("body must be a JSON object")
		}
	}
	return nil
}
