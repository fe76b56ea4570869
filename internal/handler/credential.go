package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"dealerhub-api/internal/model"
	"dealerhub-api/internal/service"
	"dealerhub-api/pkg/apierror"
	"dealerhub-api/pkg/response"
)

// CredentialManager connects and disconnects inventory accounts.
type CredentialManager interface {
	Connect(ctx context.Context, userID string, provider model.Provider, username, secret string) (*model.Credential, error)
	Disconnect(ctx context.Context, userID string, provider model.Provider) error
	Get(ctx context.Context, userID string, provider model.Provider) (*model.Credential, error)
}

// CredentialHandler handles inventory-account credential HTTP requests.
type CredentialHandler struct {
	manager CredentialManager
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(manager CredentialManager) *CredentialHandler {
	return &CredentialHandler{manager: manager}
}

// ConnectRequest is the body of PUT .../credentials.
type ConnectRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Put handles PUT /api/v1/users/{user_id}/inventory/{provider}/credentials
func (h *CredentialHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req ConnectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	cred, err := h.manager.Connect(r.Context(), userID, provider, req.Username, req.Password)
	if err != nil {
		response.Error(w, credentialError(err))
		return
	}
	response.OK(w, cred)
}

// Get handles GET /api/v1/users/{user_id}/inventory/{provider}/credentials
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	cred, err := h.manager.Get(r.Context(), userID, provider)
	if err != nil {
		response.Error(w, credentialError(err))
		return
	}
	response.OK(w, cred)
}

// Delete handles DELETE /api/v1/users/{user_id}/inventory/{provider}/credentials
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if err := h.manager.Disconnect(r.Context(), userID, provider); err != nil {
		response.Error(w, credentialError(err))
		return
	}
	response.NoContent(w)
}

func credentialError(err error) *apierror.Error {
	switch {
	case errors.Is(err, service.ErrInvalidCredential):
		return apierror.ValidationError("invalid credentials",
			apierror.FieldError{Field: "username", Message: "required"},
			apierror.FieldError{Field: "password", Message: "required"})
	case errors.Is(err, service.ErrCredentialNotFound):
		return apierror.NotFound("no credentials stored for this provider")
	case errors.Is(err, model.ErrInvalidTransition):
		return apierror.Conflict(err.Error())
	}
	log.Printf("[CredentialHandler] %v", err)
	return apierror.InternalError("failed to update credentials")
}
