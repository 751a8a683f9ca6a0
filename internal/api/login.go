package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flatroom/flat-server-go/internal/core"
)

// LoginService is the login polling behavior the handlers need.
type LoginService interface {
	SetAuthUUID(ctx context.Context, authUUID string) error
	Process(ctx context.Context, authUUID string) (*core.UserInfo, error)
	Callback(ctx context.Context, authUUID, code, providerError string) error
}

// LoginHandler handles login endpoints.
type LoginHandler struct {
	svc LoginService
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(svc LoginService) *LoginHandler {
	return &LoginHandler{svc: svc}
}

// SetAuthUUID handles POST /v1/login/set-auth-uuid.
func (h *LoginHandler) SetAuthUUID(w http.ResponseWriter, r *http.Request) {
	authUUID, ok := authRequest(w, r)
	if !ok {
		return
	}
	if err := h.svc.SetAuthUUID(r.Context(), authUUID); err != nil {
		HandleError(w, r, err)
		return
	}
	WriteSuccess(w, nil)
}

// Process handles POST /v1/login/process.
func (h *LoginHandler) Process(w http.ResponseWriter, r *http.Request) {
	authUUID, ok := authRequest(w, r)
	if !ok {
		return
	}
	info, err := h.svc.Process(r.Context(), authUUID)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	// A pending attempt answers all-empty fields.
	WriteSuccess(w, info)
}

// GithubCallback handles GET /v1/login/github/callback.
func (h *LoginHandler) GithubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if !core.IsValidUUIDv4(state) {
		writePage(w, http.StatusBadRequest, "Login failed: invalid state.")
		return
	}

	err := h.svc.Callback(r.Context(), state, q.Get("code"), q.Get("error"))
	if err == nil {
		writePage(w, http.StatusOK, "Login succeeded. You can close this page and return to Flat.")
		return
	}

	appErr := core.AsAppError(err)
	if appErr.Code == core.ErrCodeServerFail {
		slog.ErrorContext(r.Context(), "github callback failed", "auth_uuid", state, "error", err)
	}
	status := httpStatus(appErr)
	writePage(w, status, fmt.Sprintf("Login failed (%d). Please return to Flat and try again.", appErr.Code))
}

func writePage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

func authRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req core.AuthUUIDRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return "", false
	}
	if appErr := core.ValidateAuthUUIDRequest(&req); appErr != nil {
		WriteError(w, appErr)
		return "", false
	}
	return req.AuthUUID, true
}
