package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of a completed balance movement.
// Rows are append-only: nothing in the codebase updates or deletes them.
type Transaction struct {
	ID                int64           `json:"id"`
	TransactionID     string          `json:"transaction_id"`
	TenantID          int64           `json:"tenant_id"`
	SenderID          int64           `json:"sender_id"`
	SenderType        AccountType     `json:"sender_type"`
	ReceiverID        int64           `json:"receiver_id"`
	ReceiverType      AccountType     `json:"receiver_type"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	ExchangeID        *int64          `json:"exchange_id,omitempty"`
	TransferRequestID *int64          `json:"transfer_request_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// LedgerEntry is one leg of a transaction's double entry, recorded with the
// running balance at the time the leg was applied.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	AccountType   AccountType     `json:"account_type"`
	Amount        decimal.Decimal `json:"amount"`
	EntryType     string          `json:"entry_type"` // DEBIT or CREDIT
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}
