package api

import (
	"context"
	"net/http"

	"github.com/flatroom/flat-server-go/internal/convert"
	"github.com/flatroom/flat-server-go/internal/core"
)

// ConvertService is the conversion behavior the handlers need.
type ConvertService interface {
	Finish(ctx context.Context, userUUID, fileUUID string) error
	Start(ctx context.Context, userUUID, fileUUID string) (*convert.StartResult, error)
}

// ConvertHandler handles cloud storage conversion endpoints.
type ConvertHandler struct {
	svc ConvertService
}

// NewConvertHandler creates a new ConvertHandler.
func NewConvertHandler(svc ConvertService) *ConvertHandler {
	return &ConvertHandler{svc: svc}
}

// Finish handles POST /v1/cloud-storage/convert/finish.
func (h *ConvertHandler) Finish(w http.ResponseWriter, r *http.Request) {
	userUUID, fileUUID, ok := h.fileRequest(w, r)
	if !ok {
		return
	}
	if err := h.svc.Finish(r.Context(), userUUID, fileUUID); err != nil {
		HandleError(w, r, err)
		return
	}
	WriteSuccess(w, nil)
}

// Start handles POST /v1/cloud-storage/convert/start.
func (h *ConvertHandler) Start(w http.ResponseWriter, r *http.Request) {
	userUUID, fileUUID, ok := h.fileRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Start(r.Context(), userUUID, fileUUID)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	WriteSuccess(w, result)
}

func (h *ConvertHandler) fileRequest(w http.ResponseWriter, r *http.Request) (userUUID, fileUUID string, ok bool) {
	userUUID, ok = UserUUIDFromContext(r.Context())
	if !ok {
		WriteError(w, core.NewAuthFailed("missing user"))
		return "", "", false
	}
	var req core.FileUUIDRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return "", "", false
	}
	if appErr := core.ValidateFileUUIDRequest(&req); appErr != nil {
		WriteError(w, appErr)
		return "", "", false
	}
	return userUUID, req.FileUUID, true
}
