package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"dealerhub-api/internal/crypto"
	"dealerhub-api/internal/inventory"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/service"
	"dealerhub-api/pkg/apierror"
	"dealerhub-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// SyncRunner starts syncs on behalf of HTTP callers.
type SyncRunner interface {
	SyncNow(ctx context.Context, userID string, provider model.Provider) (*model.SyncResult, error)
	MaybeStartBackgroundSync(ctx context.Context, userID string, provider model.Provider) bool
}

// InventoryReader reads stored inventory state.
type InventoryReader interface {
	GetStatus(ctx context.Context, userID string, provider model.Provider) (*model.SyncStatus, error)
	ListListings(ctx context.Context, userID string, provider model.Provider, limit, offset int) ([]model.Listing, int64, error)
}

// InventoryHandler handles inventory sync HTTP requests.
type InventoryHandler struct {
	runner SyncRunner
	reader InventoryReader
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(runner SyncRunner, reader InventoryReader) *InventoryHandler {
	return &InventoryHandler{
		runner: runner,
		reader: reader,
	}
}

// Sync handles POST /api/v1/users/{user_id}/inventory/{provider}/sync
func (h *InventoryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	result, err := h.runner.SyncNow(r.Context(), userID, provider)
	if err != nil {
		response.Error(w, syncError(err))
		return
	}
	if !result.Synced && result.Reason == model.ReasonNoCredentials {
		response.Error(w, apierror.NotFound(fmt.Sprintf("no %s credentials for user %s", provider, userID)))
		return
	}

	response.OK(w, result)
}

// Status handles GET /api/v1/users/{user_id}/inventory/{provider}/status
func (h *InventoryHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	status, err := h.reader.GetStatus(r.Context(), userID, provider)
	if err != nil {
		log.Printf("[InventoryHandler] status %s/%s: %v", userID, provider, err)
		response.Error(w, apierror.InternalError("failed to load sync status"))
		return
	}
	response.OK(w, status)
}

// Listings handles GET /api/v1/users/{user_id}/inventory/{provider}/listings
// It serves the stored listings and refreshes them in the background when stale.
func (h *InventoryHandler) Listings(w http.ResponseWriter, r *http.Request) {
	userID, provider, apiErr := pathTarget(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	page, limit, apiErr := pagination(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	listings, total, err := h.reader.ListListings(r.Context(), userID, provider, limit, (page-1)*limit)
	if err != nil {
		log.Printf("[InventoryHandler] listings %s/%s: %v", userID, provider, err)
		response.Error(w, apierror.InternalError("failed to load listings"))
		return
	}

	h.runner.MaybeStartBackgroundSync(r.Context(), userID, provider)

	response.JSONWithMeta(w, http.StatusOK, listings, page, limit, total)
}

// syncError maps a failed sync to the HTTP error the caller sees.
func syncError(err error) *apierror.Error {
	if errors.Is(err, service.ErrSyncInProgress) {
		return apierror.Conflict("a sync for this account is already running")
	}

	var upErr *inventory.UpstreamRequestError
	if errors.As(err, &upErr) {
		return apierror.BadGateway(fmt.Sprintf("inventory provider returned %d: %s", upErr.StatusCode, truncate(upErr.Body, 200)))
	}
	if errors.Is(err, crypto.ErrDecryption) {
		return apierror.InternalError("stored inventory credentials could not be decrypted; reconnect the account")
	}

	var syncErr *service.SyncFailedError
	if errors.As(err, &syncErr) && syncErr.Stage == service.StageListPage {
		return apierror.BadGateway("inventory provider request failed: " + syncErr.Err.Error())
	}

	log.Printf("[InventoryHandler] sync failed: %v", err)
	return apierror.InternalError("sync failed")
}

func pathTarget(r *http.Request) (string, model.Provider, *apierror.Error) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		return "", "", apierror.BadRequest("user_id is required")
	}
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", "", apierror.ValidationError("invalid provider", apierror.FieldError{
			Field:   "provider",
			Message: err.Error(),
		})
	}
	return userID, provider, nil
}

func pagination(r *http.Request) (int, int, *apierror.Error) {
	page, limit := 1, defaultListLimit
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, apierror.BadRequest("page must be a positive integer")
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return 0, 0, apierror.BadRequest(fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		}
		limit = n
	}
	return page, limit, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
