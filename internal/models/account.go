package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes the two wallet variants: a member's personal
// balance (users.balance) and an organization wallet (org_wallets).
type AccountType string

const (
	AccountUser         AccountType = "user"
	AccountOrganization AccountType = "organization"
)

// AccountRef identifies one side of a transfer.
type AccountRef struct {
	ID   int64       `json:"id" validate:"required,gt=0"`
	Type AccountType `json:"type" validate:"required,oneof=user organization"`
}

// Account is a wallet row loaded under lock during a transfer. Balance is a
// time-credit amount with 2 decimal places. Version backs optimistic locking.
type Account struct {
	Ref       AccountRef      `json:"ref"`
	TenantID  int64           `json:"tenant_id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OrgWallet is the persisted shape of an organization wallet.
type OrgWallet struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	TenantID       int64           `json:"tenant_id"`
	Balance        decimal.Decimal `json:"balance"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
