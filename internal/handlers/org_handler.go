package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexushours/backend/internal/models"
	"github.com/nexushours/backend/internal/services"
)

type OrgHandler struct {
	service   *services.OrgService
	validator *services.ValidationHelper
}

func NewOrgHandler(service *services.OrgService) *OrgHandler {
	return &OrgHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// InitializeOwner sets the organization's owner. Idempotent: repeated calls
// with the same arguments are a no-op.
func (h *OrgHandler) InitializeOwner(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := orgIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "invalid orgId", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		OwnerUserID int64 `json:"ownerUserId" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.service.InitializeOwner(rc, orgID, req.OwnerUserID); err != nil {
		log.Printf("[ORG] InitializeOwner failed for org %d: %v", orgID, err)
		services.SendErrorResponse(w, "Failed to initialize owner", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// EnsureWallet provisions the organization's wallet if missing.
func (h *OrgHandler) EnsureWallet(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := orgIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "invalid orgId", http.StatusBadRequest, nil)
		return
	}

	if err := h.service.EnsureWallet(rc, orgID); err != nil {
		log.Printf("[ORG] EnsureWallet failed for org %d: %v", orgID, err)
		services.SendErrorResponse(w, "Failed to ensure wallet", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// ListMembers returns the organization's memberships.
func (h *OrgHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := orgIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "invalid orgId", http.StatusBadRequest, nil)
		return
	}

	members, err := h.service.ListMembers(rc, orgID)
	if err != nil {
		log.Printf("[ORG] ListMembers failed for org %d: %v", orgID, err)
		services.SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"members": members,
		"count":   len(members),
	})
}

func orgIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orgId"), 10, 64)
}
