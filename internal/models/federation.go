package models

import "time"

type PartnershipStatus string

const (
	PartnershipActive    PartnershipStatus = "active"
	PartnershipSuspended PartnershipStatus = "suspended"
)

// FederationPartnership whitelists cross-tenant interoperability between two
// communities. Each shared feature is gated by its own flag; the ledger only
// consults AllowTransactions.
type FederationPartnership struct {
	ID                int64             `json:"id"`
	TenantID          int64             `json:"tenant_id"`
	PartnerTenantID   int64             `json:"partner_tenant_id"`
	Status            PartnershipStatus `json:"status"`
	AllowDirectory    bool              `json:"allow_directory"`
	AllowMessaging    bool              `json:"allow_messaging"`
	AllowTransactions bool              `json:"allow_transactions"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
