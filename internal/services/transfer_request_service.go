package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexushours/backend/internal/audit"
	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/events"
	"github.com/nexushours/backend/internal/models"
)

// TransferRequestService implements the organization transfer approval
// workflow: pending -> approved | rejected | cancelled, exactly one
// transition, approval atomic with the wallet transfer.
type TransferRequestService struct {
	db        *sql.DB
	wallet    *WalletService
	orgs      *OrgService
	notify    *transactionNotifier
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

func NewTransferRequestService(db *sql.DB, redisClient *redis.Client, wallet *WalletService, orgs *OrgService, publisher *events.Publisher, cfg *config.LedgerConfig) *TransferRequestService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &TransferRequestService{
		db:        db,
		wallet:    wallet,
		orgs:      orgs,
		notify:    newTransactionNotifier(redisClient, publisher, cfg.AbuseQueueKey, "TRANSFER_REQUEST"),
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateInput is the service-level input for a new transfer request.
type CreateInput struct {
	OrganizationID int64
	RecipientID    int64
	Direction      models.TransferDirection
	Amount         decimal.Decimal
	Description    string
}

// Create records a new pending transfer request. No balances move.
func (s *TransferRequestService) Create(rc models.RequestContext, in CreateInput) (*models.TransferRequest, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	member, err := s.orgs.Membership(rc, in.OrganizationID, rc.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.Status != models.MemberActive {
		return nil, ErrNotAuthorized
	}

	req := &models.TransferRequest{
		RequestID:      uuid.NewString(),
		TenantID:       rc.TenantID,
		OrganizationID: in.OrganizationID,
		RequesterID:    rc.UserID,
		RecipientID:    in.RecipientID,
		RecipientType:  models.AccountUser,
		Direction:      in.Direction,
		Amount:         in.Amount,
		Description:    in.Description,
		Status:         models.RequestPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	err = s.db.QueryRow(`
		INSERT INTO org_transfer_requests
		(request_id, tenant_id, organization_id, requester_id, recipient_id, direction,
		 amount, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		req.RequestID, req.TenantID, req.OrganizationID, req.RequesterID,
		req.RecipientID, req.Direction, req.Amount, req.Description,
		req.Status, req.CreatedAt, req.UpdatedAt,
	).Scan(&req.ID)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// Approve transitions a pending request to approved and executes the wallet
// transfer in the same database transaction. If the transfer fails the
// request stays pending; if the status update fails the transfer rolls back.
func (s *TransferRequestService) Approve(rc models.RequestContext, requestID string, approverID int64) (*models.Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	req, err := s.lockRequest(tx, rc, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != models.RequestPending {
		return nil, ErrInvalidStateTransition
	}

	if err := s.requireApprover(tx, rc, req.OrganizationID, approverID); err != nil {
		return nil, err
	}

	sender, receiver := s.transferParties(req)
	txn, err := s.wallet.TransferTx(tx, rc, TransferInput{
		Sender:            sender,
		Receiver:          receiver,
		Amount:            req.Amount,
		Description:       req.Description,
		TransferRequestID: &req.ID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := tx.Exec(`
		UPDATE org_transfer_requests
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.RequestApproved, approverID, now, req.ID, models.RequestPending)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrInvalidStateTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.LogApproval(rc.TenantID, requestID, approverID, "APPROVED")
	// Background context: the transfer is committed, a client disconnect
	// must not drop the abuse queue entry.
	s.notify.Notify(context.Background(), txn)

	return txn, nil
}

// Reject transitions a pending request to rejected. No balance change.
func (s *TransferRequestService) Reject(rc models.RequestContext, requestID string, approverID int64, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := s.lockRequest(tx, rc, requestID)
	if err != nil {
		return err
	}

	if req.Status != models.RequestPending {
		return ErrInvalidStateTransition
	}

	if err := s.requireApprover(tx, rc, req.OrganizationID, approverID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE org_transfer_requests
		SET status = $1, approved_by = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		models.RequestRejected, approverID, reason, time.Now(), req.ID, models.RequestPending)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogApproval(rc.TenantID, requestID, approverID, "REJECTED")
	return nil
}

// Cancel transitions a pending request to cancelled. Only the original
// requester may cancel; no Transaction row is ever created.
func (s *TransferRequestService) Cancel(rc models.RequestContext, requestID string, callerID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := s.lockRequest(tx, rc, requestID)
	if err != nil {
		return err
	}

	if req.Status != models.RequestPending {
		return ErrInvalidStateTransition
	}

	if req.RequesterID != callerID {
		return ErrNotRequester
	}

	_, err = tx.Exec(`
		UPDATE org_transfer_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.RequestCancelled, time.Now(), req.ID, models.RequestPending)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// transferParties maps the request direction onto wallet account refs.
func (s *TransferRequestService) transferParties(req *models.TransferRequest) (sender, receiver models.AccountRef) {
	org := models.AccountRef{ID: req.OrganizationID, Type: models.AccountOrganization}
	member := models.AccountRef{ID: req.RecipientID, Type: models.AccountUser}
	if req.Direction == models.DirectionMemberToOrg {
		return member, org
	}
	return org, member
}

// requireApprover ensures the approver is an active owner or admin of the
// organization. Self-approval of one's own request is allowed for owners;
// the admin UI decides whether to expose that.
func (s *TransferRequestService) requireApprover(tx *sql.Tx, rc models.RequestContext, orgID, approverID int64) error {
	var role models.OrgRole
	var status models.OrgMemberStatus
	err := tx.QueryRow(`
		SELECT role, status FROM org_members
		WHERE organization_id = $1 AND user_id = $2 AND tenant_id = $3`,
		orgID, approverID, rc.TenantID).Scan(&role, &status)
	if err == sql.ErrNoRows {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}

	if status != models.MemberActive || (role != models.RoleOwner && role != models.RoleAdmin) {
		return ErrNotAuthorized
	}

	return nil
}

func (s *TransferRequestService) lockRequest(tx *sql.Tx, rc models.RequestContext, requestID string) (*models.TransferRequest, error) {
	req := &models.TransferRequest{}
	var approvedBy sql.NullInt64
	var approvedAt sql.NullTime
	var reason sql.NullString
	err := tx.QueryRow(`
		SELECT id, request_id, tenant_id, organization_id, requester_id, recipient_id,
		       direction, amount, description, status, approved_by, approved_at,
		       rejection_reason, created_at, updated_at
		FROM org_transfer_requests
		WHERE request_id = $1 AND tenant_id = $2
		FOR UPDATE`,
		requestID, rc.TenantID,
	).Scan(
		&req.ID, &req.RequestID, &req.TenantID, &req.OrganizationID, &req.RequesterID,
		&req.RecipientID, &req.Direction, &req.Amount, &req.Description, &req.Status,
		&approvedBy, &approvedAt, &reason, &req.CreatedAt, &req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	req.RecipientType = models.AccountUser
	if approvedBy.Valid {
		req.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		req.ApprovedAt = &approvedAt.Time
	}
	req.RejectionReason = reason.String

	return req, nil
}

// List returns the organization's requests, newest first, tenant scoped.
func (s *TransferRequestService) List(rc models.RequestContext, orgID int64, status string, limit int) ([]models.TransferRequest, error) {
	args := []any{rc.TenantID, orgID}
	query := `
		SELECT id, request_id, tenant_id, organization_id, requester_id, recipient_id,
		       direction, amount, description, status, approved_by, approved_at,
		       rejection_reason, created_at, updated_at
		FROM org_transfer_requests
		WHERE tenant_id = $1 AND organization_id = $2`

	if status != "" {
		query += " AND status = $3"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.TransferRequest{}
	for rows.Next() {
		var req models.TransferRequest
		var approvedBy sql.NullInt64
		var approvedAt sql.NullTime
		var reason sql.NullString
		err := rows.Scan(
			&req.ID, &req.RequestID, &req.TenantID, &req.OrganizationID, &req.RequesterID,
			&req.RecipientID, &req.Direction, &req.Amount, &req.Description, &req.Status,
			&approvedBy, &approvedAt, &reason, &req.CreatedAt, &req.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		req.RecipientType = models.AccountUser
		if approvedBy.Valid {
			req.ApprovedBy = &approvedBy.Int64
		}
		if approvedAt.Valid {
			req.ApprovedAt = &approvedAt.Time
		}
		req.RejectionReason = reason.String
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// HTTP surface.

type createRequestBody struct {
	OrganizationID int64  `json:"organizationId" validate:"required,gt=0"`
	RecipientID    int64  `json:"recipientId" validate:"required,gt=0"`
	Direction      string `json:"direction" validate:"required,oneof=org_to_member member_to_org"`
	Amount         string `json:"amount" validate:"required"`
	Description    string `json:"description" validate:"max=500"`
}

func (s *TransferRequestService) HandleCreate(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var body createRequestBody

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	req, err := s.Create(rc, CreateInput{
		OrganizationID: body.OrganizationID,
		RecipientID:    body.RecipientID,
		Direction:      models.TransferDirection(body.Direction),
		Amount:         amount,
		Description:    body.Description,
	})
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

func (s *TransferRequestService) HandleApprove(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")

	txn, err := s.Approve(rc, requestID, rc.UserID)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": txn,
	})
}

func (s *TransferRequestService) HandleReject(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")

	var body struct {
		Reason string `json:"reason" validate:"required,max=500"`
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

	if err := s.Reject(rc, requestID, rc.UserID, body.Reason); err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (s *TransferRequestService) HandleCancel(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")

	if err := s.Cancel(rc, requestID, rc.UserID); err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (s *TransferRequestService) HandleList(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orgID, err := parseIDParam(r, "orgId")
	if err != nil {
		SendErrorResponse(w, "invalid orgId", http.StatusBadRequest, nil)
		return
	}

	requests, err := s.List(rc, orgID, r.URL.Query().Get("status"), 50)
	if err != nil {
		log.Printf("[TRANSFER_REQUEST] Failed to list requests for org %d: %v", orgID, err)
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

func (s *TransferRequestService) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrInvalidStateTransition):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, ErrNotRequester), errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrCrossTenantViolation):
		SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrSelfTransfer):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrAccountNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	default:
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}
