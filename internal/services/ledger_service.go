package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/models"
)

// federationGate is the slice of FederationService the ledger needs to decide
// whether a cross-tenant transfer is whitelisted.
type federationGate interface {
	transactionsAllowedTx(tx *sql.Tx, tenantID, partnerTenantID int64) (bool, error)
}

// WalletService maintains consistent balances and the append-only transaction
// log. All mutation happens inside a database transaction; TransferTx lets
// workflow services combine a transfer with their own state updates.
type WalletService struct {
	db         *sql.DB
	cfg        *config.LedgerConfig
	federation federationGate
}

func NewWalletService(db *sql.DB, cfg *config.LedgerConfig, federation federationGate) *WalletService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &WalletService{
		db:         db,
		cfg:        cfg,
		federation: federation,
	}
}

// TransferInput describes one requested balance movement.
type TransferInput struct {
	Sender            models.AccountRef
	Receiver          models.AccountRef
	Amount            decimal.Decimal
	Description       string
	ExchangeID        *int64
	TransferRequestID *int64
}

// Transfer moves credits between two accounts in a single database
// transaction: debit, credit and the immutable transaction row all commit or
// none do.
func (s *WalletService) Transfer(rc models.RequestContext, in TransferInput) (*models.Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn, err := s.TransferTx(tx, rc, in)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return txn, nil
}

// TransferTx performs the transfer inside tx. Account rows are locked with
// SELECT ... FOR UPDATE in a deterministic order to prevent deadlocks
// between concurrent transfers touching the same accounts.
func (s *WalletService) TransferTx(tx *sql.Tx, rc models.RequestContext, in TransferInput) (*models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if in.Sender == in.Receiver {
		return nil, ErrSelfTransfer
	}

	firstRef, secondRef := in.Sender, in.Receiver
	if lockAfter(firstRef, secondRef) {
		firstRef, secondRef = secondRef, firstRef
	}

	first, err := s.lockAccount(tx, firstRef)
	if err != nil {
		return nil, err
	}

	second, err := s.lockAccount(tx, secondRef)
	if err != nil {
		return nil, err
	}

	sender, receiver := first, second
	if firstRef != in.Sender {
		sender, receiver = second, first
	}

	if sender.TenantID != rc.TenantID {
		return nil, ErrCrossTenantViolation
	}

	if sender.TenantID != receiver.TenantID {
		allowed, err := s.crossTenantAllowed(tx, sender.TenantID, receiver.TenantID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrCrossTenantViolation
		}
	}

	senderBalance := sender.Balance.Sub(in.Amount)
	if senderBalance.IsNegative() && !s.overdraftAllowed(sender.Ref.Type) {
		return nil, ErrInsufficientFunds
	}
	receiverBalance := receiver.Balance.Add(in.Amount)

	txn := &models.Transaction{
		TransactionID:     uuid.NewString(),
		TenantID:          sender.TenantID,
		SenderID:          in.Sender.ID,
		SenderType:        in.Sender.Type,
		ReceiverID:        in.Receiver.ID,
		ReceiverType:      in.Receiver.Type,
		Amount:            in.Amount,
		Description:       in.Description,
		ExchangeID:        in.ExchangeID,
		TransferRequestID: in.TransferRequestID,
		CreatedAt:         time.Now(),
	}

	if err := s.insertTransaction(tx, txn); err != nil {
		return nil, err
	}

	if err := s.createLedgerEntry(tx, txn.TransactionID, sender.Ref, in.Amount.Neg(), "DEBIT", senderBalance); err != nil {
		return nil, err
	}

	if err := s.createLedgerEntry(tx, txn.TransactionID, receiver.Ref, in.Amount, "CREDIT", receiverBalance); err != nil {
		return nil, err
	}

	if err := s.updateBalance(tx, sender.Ref, senderBalance, sender.Version); err != nil {
		return nil, err
	}

	if err := s.updateBalance(tx, receiver.Ref, receiverBalance, receiver.Version); err != nil {
		return nil, err
	}

	return txn, nil
}

// overdraftAllowed: organization wallets may never go negative; personal
// balances only when the deployment opts in.
func (s *WalletService) overdraftAllowed(t models.AccountType) bool {
	return t == models.AccountUser && s.cfg.AllowMemberOverdraft
}

func (s *WalletService) crossTenantAllowed(tx *sql.Tx, tenantID, partnerTenantID int64) (bool, error) {
	if s.federation == nil {
		return false, nil
	}
	return s.federation.transactionsAllowedTx(tx, tenantID, partnerTenantID)
}

// lockAfter orders account locks by (type, id).
func lockAfter(a, b models.AccountRef) bool {
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.ID > b.ID
}

func (s *WalletService) lockAccount(tx *sql.Tx, ref models.AccountRef) (*models.Account, error) {
	account := models.Account{Ref: ref}

	var err error
	switch ref.Type {
	case models.AccountUser:
		err = tx.QueryRow(`
			SELECT tenant_id, balance, version, updated_at
			FROM users
			WHERE id = $1
			FOR UPDATE`, ref.ID).Scan(&account.TenantID, &account.Balance, &account.Version, &account.UpdatedAt)
	case models.AccountOrganization:
		err = tx.QueryRow(`
			SELECT tenant_id, balance, version, updated_at
			FROM org_wallets
			WHERE organization_id = $1
			FOR UPDATE`, ref.ID).Scan(&account.TenantID, &account.Balance, &account.Version, &account.UpdatedAt)
	default:
		return nil, fmt.Errorf("unknown account type %q", ref.Type)
	}

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func (s *WalletService) insertTransaction(tx *sql.Tx, txn *models.Transaction) error {
	return tx.QueryRow(`
		INSERT INTO transactions
		(transaction_id, tenant_id, sender_id, sender_type, receiver_id, receiver_type,
		 amount, description, exchange_id, transfer_request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		txn.TransactionID, txn.TenantID, txn.SenderID, txn.SenderType,
		txn.ReceiverID, txn.ReceiverType, txn.Amount, txn.Description,
		txn.ExchangeID, txn.TransferRequestID, txn.CreatedAt,
	).Scan(&txn.ID)
}

func (s *WalletService) createLedgerEntry(tx *sql.Tx, transactionID string, ref models.AccountRef, amount decimal.Decimal, entryType string, balance decimal.Decimal) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (transaction_id, account_id, account_type, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transactionID, ref.ID, ref.Type, amount, entryType, balance, time.Now())
	return err
}

func (s *WalletService) updateBalance(tx *sql.Tx, ref models.AccountRef, newBalance decimal.Decimal, version int) error {
	var result sql.Result
	var err error
	switch ref.Type {
	case models.AccountUser:
		result, err = tx.Exec(`
			UPDATE users
			SET balance = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			newBalance, time.Now(), ref.ID, version)
	case models.AccountOrganization:
		result, err = tx.Exec(`
			UPDATE org_wallets
			SET balance = $1, version = version + 1, updated_at = $2
			WHERE organization_id = $3 AND version = $4`,
			newBalance, time.Now(), ref.ID, version)
	default:
		return fmt.Errorf("unknown account type %q", ref.Type)
	}

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for %s account %d", ref.Type, ref.ID)
	}

	return nil
}

// Balance reads the current balance outside any lock, tenant scoped.
func (s *WalletService) Balance(rc models.RequestContext, ref models.AccountRef) (decimal.Decimal, error) {
	var balance decimal.Decimal
	var err error
	switch ref.Type {
	case models.AccountUser:
		err = s.db.QueryRow(`
			SELECT balance FROM users WHERE id = $1 AND tenant_id = $2`,
			ref.ID, rc.TenantID).Scan(&balance)
	case models.AccountOrganization:
		err = s.db.QueryRow(`
			SELECT balance FROM org_wallets WHERE organization_id = $1 AND tenant_id = $2`,
			ref.ID, rc.TenantID).Scan(&balance)
	default:
		return decimal.Zero, fmt.Errorf("unknown account type %q", ref.Type)
	}

	if err == sql.ErrNoRows {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, err
}
