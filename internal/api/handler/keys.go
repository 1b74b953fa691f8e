package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/nsstatus/internal/api/response"
	"github.com/kiranshivaraju/nsstatus/internal/apikey"
	"github.com/kiranshivaraju/nsstatus/internal/store"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

// Keys serves the admin API key endpoints.
type Keys struct {
	store store.Store
}

func NewKeys(s store.Store) *Keys {
	return &Keys{store: s}
}

type createKeyRequest struct {
	Name   string   `json:"name" validate:"required,max=100"`
	Scopes []string `json:"scopes" validate:"required,min=1,dive,oneof=read submit admin"`
}

type createKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// Create handles POST /api/v1/admin/keys. The raw key is only ever
// returned here.
func (h *Keys) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	key, raw, err := apikey.New(req.Name, req.Scopes)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate key", nil)
		return
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_KEY_NAME", "A key with this name already exists", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store key", nil)
		return
	}

	response.Created(w, createKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		Key:       raw,
		KeyPrefix: key.KeyPrefix,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	})
}

// List handles GET /api/v1/admin/keys.
func (h *Keys) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.JSON(w, keys)
}

// Revoke handles DELETE /api/v1/admin/keys/{keyID}.
func (h *Keys) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "Invalid key ID format", nil)
		return
	}

	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
		return
	}

	response.NoContent(w)
}
