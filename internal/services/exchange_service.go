package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"

	"github.com/nexushours/backend/internal/audit"
	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/events"
	"github.com/nexushours/backend/internal/models"
)

// Exchange workflow errors.
var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrNotParticipant   = errors.New("caller is not a participant of this exchange")
	ErrDuplicateReview  = errors.New("exchange already reviewed by this user")
	ErrNotCompleted     = errors.New("exchange is not completed")
)

// ExchangeService settles member-to-member exchanges. Completing an exchange
// pays the provider from the receiver's balance atomically with the status
// update; cancelling never touches balances.
type ExchangeService struct {
	db        *sql.DB
	wallet    *WalletService
	notify    *transactionNotifier
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

func NewExchangeService(db *sql.DB, redisClient *redis.Client, wallet *WalletService, publisher *events.Publisher, cfg *config.LedgerConfig) *ExchangeService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &ExchangeService{
		db:        db,
		wallet:    wallet,
		notify:    newTransactionNotifier(redisClient, publisher, cfg.AbuseQueueKey, "EXCHANGE"),
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// Complete settles the exchange: the receiver of the service pays the
// provider the agreed credits and the exchange becomes completed, all in one
// database transaction.
func (s *ExchangeService) Complete(rc models.RequestContext, exchangeID int64) (*models.Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ex, err := s.lockExchange(tx, rc, exchangeID)
	if err != nil {
		return nil, err
	}

	if ex.Status != models.ExchangeAccepted {
		return nil, ErrInvalidStateTransition
	}

	if rc.UserID != ex.ProviderID && rc.UserID != ex.ReceiverID {
		return nil, ErrNotParticipant
	}

	txn, err := s.wallet.TransferTx(tx, rc, TransferInput{
		Sender:      models.AccountRef{ID: ex.ReceiverID, Type: models.AccountUser},
		Receiver:    models.AccountRef{ID: ex.ProviderID, Type: models.AccountUser},
		Amount:      ex.TimeCredits,
		Description: "Exchange: " + ex.Title,
		ExchangeID:  &ex.ID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := tx.Exec(`
		UPDATE exchanges
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.ExchangeCompleted, now, ex.ID, models.ExchangeAccepted)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrInvalidStateTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.LogTransfer(rc.TenantID, txn.TransactionID, txn.SenderID, txn.ReceiverID, txn.Amount.String(), "EXCHANGE_COMPLETED")
	// Background context: the settlement is committed, a client disconnect
	// must not drop the abuse queue entry.
	s.notify.Notify(context.Background(), txn)
	return txn, nil
}

// Cancel marks an accepted exchange cancelled. No Transaction row is
// created.
func (s *ExchangeService) Cancel(rc models.RequestContext, exchangeID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ex, err := s.lockExchange(tx, rc, exchangeID)
	if err != nil {
		return err
	}

	if ex.Status != models.ExchangeAccepted {
		return ErrInvalidStateTransition
	}

	if rc.UserID != ex.ProviderID && rc.UserID != ex.ReceiverID {
		return ErrNotParticipant
	}

	_, err = tx.Exec(`
		UPDATE exchanges
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.ExchangeCancelled, time.Now(), ex.ID, models.ExchangeAccepted)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SubmitReview records a participant's rating of a completed exchange. The
// unique constraint on (exchange_id, reviewer_id) rejects duplicates.
func (s *ExchangeService) SubmitReview(rc models.RequestContext, exchangeID int64, rating int, comment string) (*models.Review, error) {
	review := models.Review{
		TenantID:   rc.TenantID,
		ExchangeID: exchangeID,
		ReviewerID: rc.UserID,
		Rating:     rating,
		Comment:    comment,
	}
	if err := s.validator.ValidateStruct(&review); err != nil {
		return nil, err
	}

	ex := models.Exchange{}
	err := s.db.QueryRow(`
		SELECT id, provider_id, receiver_id, status
		FROM exchanges
		WHERE id = $1 AND tenant_id = $2`,
		exchangeID, rc.TenantID).Scan(&ex.ID, &ex.ProviderID, &ex.ReceiverID, &ex.Status)
	if err == sql.ErrNoRows {
		return nil, ErrExchangeNotFound
	}
	if err != nil {
		return nil, err
	}

	if ex.Status != models.ExchangeCompleted {
		return nil, ErrNotCompleted
	}

	switch rc.UserID {
	case ex.ProviderID:
		review.RevieweeID = ex.ReceiverID
	case ex.ReceiverID:
		review.RevieweeID = ex.ProviderID
	default:
		return nil, ErrNotParticipant
	}

	review.CreatedAt = time.Now()
	err = s.db.QueryRow(`
		INSERT INTO reviews (tenant_id, exchange_id, reviewer_id, reviewee_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		review.TenantID, review.ExchangeID, review.ReviewerID, review.RevieweeID,
		review.Rating, review.Comment, review.CreatedAt,
	).Scan(&review.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateReview
		}
		return nil, err
	}

	return &review, nil
}

func (s *ExchangeService) lockExchange(tx *sql.Tx, rc models.RequestContext, exchangeID int64) (*models.Exchange, error) {
	ex := &models.Exchange{}
	var completedAt sql.NullTime
	err := tx.QueryRow(`
		SELECT id, tenant_id, provider_id, receiver_id, time_credits, title, status,
		       completed_at, created_at, updated_at
		FROM exchanges
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`,
		exchangeID, rc.TenantID,
	).Scan(
		&ex.ID, &ex.TenantID, &ex.ProviderID, &ex.ReceiverID, &ex.TimeCredits,
		&ex.Title, &ex.Status, &completedAt, &ex.CreatedAt, &ex.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrExchangeNotFound
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ex.CompletedAt = &completedAt.Time
	}
	return ex, nil
}

// HTTP surface.

func (s *ExchangeService) HandleComplete(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	exchangeID, err := parseIDParam(r, "exchangeId")
	if err != nil {
		SendErrorResponse(w, "invalid exchangeId", http.StatusBadRequest, nil)
		return
	}

	txn, err := s.Complete(rc, exchangeID)
	if err != nil {
		s.writeExchangeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": txn,
	})
}

func (s *ExchangeService) HandleCancel(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	exchangeID, err := parseIDParam(r, "exchangeId")
	if err != nil {
		SendErrorResponse(w, "invalid exchangeId", http.StatusBadRequest, nil)
		return
	}

	if err := s.Cancel(rc, exchangeID); err != nil {
		s.writeExchangeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (s *ExchangeService) HandleSubmitReview(w http.ResponseWriter, r *http.Request) {
	rc, err := models.RequestContextFrom(r.Context())
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	exchangeID, err := parseIDParam(r, "exchangeId")
	if err != nil {
		SendErrorResponse(w, "invalid exchangeId", http.StatusBadRequest, nil)
		return
	}

	var body struct {
		Rating  int    `json:"rating" validate:"required,min=1,max=5"`
		Comment string `json:"comment" validate:"max=1000"`
	}

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

	review, err := s.SubmitReview(rc, exchangeID, body.Rating, body.Comment)
	if err != nil {
		s.writeExchangeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(review)
}

func (s *ExchangeService) writeExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExchangeNotFound), errors.Is(err, ErrAccountNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, ErrDuplicateReview):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrCrossTenantViolation):
		SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNotCompleted):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	default:
		SendErrorResponse(w, "Failed to process exchange", http.StatusInternalServerError, nil)
	}
}
