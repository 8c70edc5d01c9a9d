package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/nexushours/backend/internal/models"
	"github.com/nexushours/backend/internal/services"
)

type FederationHandler struct {
	service   *services.FederationService
	validator *services.ValidationHelper
}

func NewFederationHandler(service *services.FederationService) *FederationHandler {
	return &FederationHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// UpdatePartnership creates or updates this tenant's side of a federation
// partnership, including its per-feature flags.
func (h *FederationHandler) UpdatePartnership(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PartnerTenantID   int64  `json:"partnerTenantId" validate:"required,gt=0"`
		Status            string `json:"status" validate:"required,oneof=active suspended"`
		AllowDirectory    bool   `json:"allowDirectory"`
		AllowMessaging    bool   `json:"allowMessaging"`
		AllowTransactions bool   `json:"allowTransactions"`
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

	if req.PartnerTenantID == rc.TenantID {
		services.SendErrorResponse(w, "Cannot federate with own tenant", http.StatusBadRequest, nil)
		return
	}

	err = h.service.UpsertPartnership(rc, models.FederationPartnership{
		PartnerTenantID:   req.PartnerTenantID,
		Status:            models.PartnershipStatus(req.Status),
		AllowDirectory:    req.AllowDirectory,
		AllowMessaging:    req.AllowMessaging,
		AllowTransactions: req.AllowTransactions,
	})
	if err != nil {
		log.Printf("[FEDERATION] Upsert failed for tenant %d -> %d: %v", rc.TenantID, req.PartnerTenantID, err)
		services.SendErrorResponse(w, "Failed to update partnership", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// ListPartnerships returns this tenant's partnerships.
func (h *FederationHandler) ListPartnerships(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	partnerships, err := h.service.Partnerships(rc)
	if err != nil {
		log.Printf("[FEDERATION] List failed for tenant %d: %v", rc.TenantID, err)
		services.SendErrorResponse(w, "Failed to fetch partnerships", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"partnerships": partnerships,
		"count":        len(partnerships),
	})
}
