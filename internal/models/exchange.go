package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeStatus string

const (
	ExchangeAccepted  ExchangeStatus = "accepted"
	ExchangeCompleted ExchangeStatus = "completed"
	ExchangeCancelled ExchangeStatus = "cancelled"
)

// Exchange is an agreed service between two members. On completion the
// receiver of the service pays the provider the agreed time credits.
type Exchange struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	ProviderID  int64           `json:"provider_id"`
	ReceiverID  int64           `json:"receiver_id"`
	TimeCredits decimal.Decimal `json:"time_credits"`
	Title       string          `json:"title"`
	Status      ExchangeStatus  `json:"status"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Review is a participant's rating of a completed exchange. One review per
// (exchange_id, reviewer_id), rating in [1,5].
type Review struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	ExchangeID int64     `json:"exchange_id"`
	ReviewerID int64     `json:"reviewer_id"`
	RevieweeID int64     `json:"reviewee_id"`
	Rating     int       `json:"rating" validate:"required,min=1,max=5"`
	Comment    string    `json:"comment" validate:"max=1000"`
	CreatedAt  time.Time `json:"created_at"`
}
