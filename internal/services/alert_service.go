package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexushours/backend/internal/models"
)

// AlertService stores abuse alerts and lets admins triage them. Alert rows
// are mutable only through the status field; everything else is written once
// by the detection worker.
type AlertService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewAlertService(db *sql.DB) *AlertService {
	return &AlertService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// alertTransitions is the triage state machine: new -> reviewing ->
// resolved/dismissed, with a shortcut from new straight to dismissed for
// false positives.
var alertTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.AlertNew:       {models.AlertReviewing, models.AlertDismissed},
	models.AlertReviewing: {models.AlertResolved, models.AlertDismissed},
}

func alertTransitionAllowed(from, to models.AlertStatus) bool {
	for _, next := range alertTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Insert stores a detector-produced alert.
func (s *AlertService) Insert(alert *models.AbuseAlert) error {
	if alert.AlertID == "" {
		alert.AlertID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertNew
	}
	now := time.Now()

	return s.db.QueryRow(`
		INSERT INTO abuse_alerts
		(alert_id, tenant_id, transaction_id, user_id, rule_name, severity, status, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`,
		alert.AlertID, alert.TenantID, alert.TransactionID, alert.UserID,
		alert.RuleName, alert.Severity, alert.Status, alert.Details, now,
	).Scan(&alert.ID)
}

// UpdateStatus transitions an alert, enforcing the triage state machine.
// The row is otherwise immutable.
func (s *AlertService) UpdateStatus(rc models.RequestContext, alertID string, to models.AlertStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.AlertStatus
	err = tx.QueryRow(`
		SELECT status FROM abuse_alerts
		WHERE alert_id = $1 AND tenant_id = $2
		FOR UPDATE`,
		alertID, rc.TenantID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrAlertNotFound
	}
	if err != nil {
		return err
	}

	if !alertTransitionAllowed(current, to) {
		return ErrInvalidStateTransition
	}

	// resolved_by records who closed the alert, not who started reviewing it.
	if to.Terminal() {
		_, err = tx.Exec(`
			UPDATE abuse_alerts
			SET status = $1, resolved_by = $2, updated_at = $3
			WHERE alert_id = $4 AND tenant_id = $5`,
			to, rc.UserID, time.Now(), alertID, rc.TenantID)
	} else {
		_, err = tx.Exec(`
			UPDATE abuse_alerts
			SET status = $1, updated_at = $2
			WHERE alert_id = $3 AND tenant_id = $4`,
			to, time.Now(), alertID, rc.TenantID)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// List returns the tenant's alerts, optionally filtered by status, newest
// first.
func (s *AlertService) List(rc models.RequestContext, status string, limit int) ([]models.AbuseAlert, error) {
	args := []any{rc.TenantID}
	query := `
		SELECT id, alert_id, tenant_id, COALESCE(transaction_id, ''), user_id, rule_name,
		       severity, status, details, resolved_by, created_at, updated_at
		FROM abuse_alerts
		WHERE tenant_id = $1`

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.AbuseAlert{}
	for rows.Next() {
		var a models.AbuseAlert
		var userID, resolvedBy sql.NullInt64
		err := rows.Scan(
			&a.ID, &a.AlertID, &a.TenantID, &a.TransactionID, &userID, &a.RuleName,
			&a.Severity, &a.Status, &a.Details, &resolvedBy, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if userID.Valid {
			a.UserID = &userID.Int64
		}
		if resolvedBy.Valid {
			a.ResolvedBy = &resolvedBy.Int64
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// HTTP surface for the admin triage views.

func (s *AlertService) HandleList(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	alerts, err := s.List(rc, r.URL.Query().Get("status"), 100)
	if err != nil {
		log.Printf("[ALERTS] Failed to list alerts for tenant %d: %v", rc.TenantID, err)
		SendErrorResponse(w, "Failed to fetch alerts", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *AlertService) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	alertID := chi.URLParam(r, "alertId")

	var body struct {
		Status string `json:"status" validate:"required,oneof=reviewing resolved dismissed"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	err = s.UpdateStatus(rc, alertID, models.AlertStatus(body.Status))
	switch {
	case err == nil:
	case errors.Is(err, ErrAlertNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	case errors.Is(err, ErrInvalidStateTransition):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		return
	default:
		SendErrorResponse(w, "Failed to update alert", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}
