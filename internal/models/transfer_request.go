package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferRequestStatus string

const (
	RequestPending   TransferRequestStatus = "pending"
	RequestApproved  TransferRequestStatus = "approved"
	RequestRejected  TransferRequestStatus = "rejected"
	RequestCancelled TransferRequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransferRequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCancelled
}

// TransferRequest is a proposed organization<->member credit movement awaiting
// admin approval. It transitions exactly once out of pending; approval creates
// the backing Transaction atomically with the status update.
type TransferRequest struct {
	ID              int64                 `json:"id"`
	RequestID       string                `json:"request_id"`
	TenantID        int64                 `json:"tenant_id"`
	OrganizationID  int64                 `json:"organization_id"`
	RequesterID     int64                 `json:"requester_id"`
	RecipientID     int64                 `json:"recipient_id"`
	RecipientType   AccountType           `json:"recipient_type"`
	Direction       TransferDirection     `json:"direction"`
	Amount          decimal.Decimal       `json:"amount"`
	Description     string                `json:"description"`
	Status          TransferRequestStatus `json:"status"`
	ApprovedBy      *int64                `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TransferDirection says which way the credits move relative to the org wallet.
type TransferDirection string

const (
	DirectionOrgToMember TransferDirection = "org_to_member"
	DirectionMemberToOrg TransferDirection = "member_to_org"
)
