package handlers

import (
	"net/http"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
)

// SessionHandler issues device tokens. There are no accounts to register or
// log into: the browser asks for a token once and keeps it.
type SessionHandler struct {
	auth *middleware.DeviceAuth
}

func NewSessionHandler(auth *middleware.DeviceAuth) *SessionHandler {
	return &SessionHandler{auth: auth}
}

func (h *SessionHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, deviceID, err := h.auth.IssueToken()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":     token,
		"device_id": deviceID,
	})
}
