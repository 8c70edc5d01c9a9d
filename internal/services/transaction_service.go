package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/nexushours/backend/internal/audit"
	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/events"
	"github.com/nexushours/backend/internal/models"
)

// TransactionService exposes the ledger over HTTP: direct member-to-member
// transfers, transaction lookup and balance enquiries. Completed transfers
// are queued on redis for abuse analysis and broadcast over NATS.
type TransactionService struct {
	db        *sql.DB
	wallet    *WalletService
	notify    *transactionNotifier
	audit     *audit.AuditLogger
	validator *ValidationHelper
	cfg       *config.LedgerConfig
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client, wallet *WalletService, publisher *events.Publisher, cfg *config.LedgerConfig) *TransactionService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &TransactionService{
		db:        db,
		wallet:    wallet,
		notify:    newTransactionNotifier(redisClient, publisher, cfg.AbuseQueueKey, "TRANSACTION"),
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

type transferRequest struct {
	ReceiverID   int64  `json:"receiverId" validate:"required,gt=0"`
	ReceiverType string `json:"receiverType" validate:"required,oneof=user organization"`
	Amount       string `json:"amount" validate:"required"`
	Description  string `json:"description" validate:"max=500"`
}

// CreateTransfer processes a member-initiated transfer from the caller's
// personal balance.
func (ts *TransactionService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req transferRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	if amount.GreaterThan(decimal.NewFromFloat(ts.cfg.MaxTransferAmount)) {
		SendErrorResponse(w, "Amount exceeds transfer limit", http.StatusBadRequest, nil)
		return
	}

	in := TransferInput{
		Sender:      models.AccountRef{ID: rc.UserID, Type: models.AccountUser},
		Receiver:    models.AccountRef{ID: req.ReceiverID, Type: models.AccountType(req.ReceiverType)},
		Amount:      amount,
		Description: req.Description,
	}

	txn, err := ts.wallet.Transfer(rc, in)
	if err != nil {
		ts.audit.LogError(rc.TenantID, "", err)
		ts.writeDomainError(w, err)
		return
	}

	ts.audit.LogTransfer(rc.TenantID, txn.TransactionID, txn.SenderID, txn.ReceiverID, txn.Amount.String(), "SUCCESS")
	ts.notify.Notify(r.Context(), txn)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": txn,
	})
}

// GetTransaction retrieves a single transaction, tenant scoped.
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID := chi.URLParam(r, "txId")

	txn, err := ts.fetchTransaction(rc, txID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// ListTransactions returns transactions for the caller's tenant with
// optional account and date filters.
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	transactions, err := ts.fetchTransactions(rc, accountID, limit)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to list transactions for tenant %d: %v", rc.TenantID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// BalanceEnquiry returns the caller's personal balance, or an organization
// wallet balance when orgId is given.
func (ts *TransactionService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	ref := models.AccountRef{ID: rc.UserID, Type: models.AccountUser}
	if orgStr := r.URL.Query().Get("orgId"); orgStr != "" {
		orgID, err := strconv.ParseInt(orgStr, 10, 64)
		if err != nil || orgID <= 0 {
			SendErrorResponse(w, "invalid orgId", http.StatusBadRequest, nil)
			return
		}
		ref = models.AccountRef{ID: orgID, Type: models.AccountOrganization}
	}

	balance, err := ts.wallet.Balance(rc, ref)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId":   ref.ID,
		"accountType": ref.Type,
		"balance":     balance,
	})
}

func (ts *TransactionService) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrCrossTenantViolation):
		SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, ErrAccountNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	default:
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
	}
}

func (ts *TransactionService) fetchTransaction(rc models.RequestContext, txID string) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := ts.db.QueryRow(`
		SELECT id, transaction_id, tenant_id, sender_id, sender_type, receiver_id, receiver_type,
		       amount, description, exchange_id, transfer_request_id, created_at
		FROM transactions
		WHERE transaction_id = $1 AND tenant_id = $2`,
		txID, rc.TenantID,
	).Scan(
		&txn.ID, &txn.TransactionID, &txn.TenantID, &txn.SenderID, &txn.SenderType,
		&txn.ReceiverID, &txn.ReceiverType, &txn.Amount, &txn.Description,
		&txn.ExchangeID, &txn.TransferRequestID, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (ts *TransactionService) fetchTransactions(rc models.RequestContext, accountID string, limit int) ([]models.Transaction, error) {
	args := []any{rc.TenantID}
	query := `
		SELECT id, transaction_id, tenant_id, sender_id, sender_type, receiver_id, receiver_type,
		       amount, description, exchange_id, transfer_request_id, created_at
		FROM transactions
		WHERE tenant_id = $1`

	if accountID != "" {
		id, err := strconv.ParseInt(accountID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid account id %q", accountID)
		}
		query += " AND (sender_id = $2 OR receiver_id = $2)"
		args = append(args, id)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(
			&txn.ID, &txn.TransactionID, &txn.TenantID, &txn.SenderID, &txn.SenderType,
			&txn.ReceiverID, &txn.ReceiverType, &txn.Amount, &txn.Description,
			&txn.ExchangeID, &txn.TransferRequestID, &txn.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}
