package models

import "time"

type OrgRole string

const (
	RoleOwner  OrgRole = "owner"
	RoleAdmin  OrgRole = "admin"
	RoleMember OrgRole = "member"
)

type OrgMemberStatus string

const (
	MemberActive  OrgMemberStatus = "active"
	MemberPending OrgMemberStatus = "pending"
	MemberInvited OrgMemberStatus = "invited"
	MemberRemoved OrgMemberStatus = "removed"
)

type Organization struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgMember links a user to an organization. (organization_id, user_id) is
// unique; exactly one owner per organization is maintained by the upsert in
// InitializeOwner and the migration backfill.
type OrgMember struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	OrganizationID int64           `json:"organization_id"`
	UserID         int64           `json:"user_id"`
	Role           OrgRole         `json:"role"`
	Status         OrgMemberStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
