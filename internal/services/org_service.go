package services

import (
	"database/sql"
	"time"

	"github.com/nexushours/backend/internal/models"
)

// OrgService manages organization membership and wallet provisioning. Both
// operations are idempotent upserts keyed on natural unique constraints, so
// concurrent migration runs or repeated calls converge to the same state.
type OrgService struct {
	db *sql.DB
}

func NewOrgService(db *sql.DB) *OrgService {
	return &OrgService{db: db}
}

// InitializeOwner makes ownerUserID the owner of the organization. Safe to
// call repeatedly: on conflict the existing membership is promoted to
// owner/active. Used at organization creation and by the migration backfill.
func (s *OrgService) InitializeOwner(rc models.RequestContext, orgID, ownerUserID int64) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO org_members (tenant_id, organization_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'owner', 'active', $4, $4)
		ON CONFLICT (organization_id, user_id)
		DO UPDATE SET role = 'owner', status = 'active', updated_at = $4`,
		rc.TenantID, orgID, ownerUserID, now)
	return err
}

// EnsureWallet creates a zero-balance wallet for the organization if none
// exists. The unique constraint on organization_id makes this race-free.
func (s *OrgService) EnsureWallet(rc models.RequestContext, orgID int64) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO org_wallets (tenant_id, organization_id, balance, version, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, $3)
		ON CONFLICT (organization_id) DO NOTHING`,
		rc.TenantID, orgID, now)
	return err
}

// Membership returns the user's membership in the organization, or nil when
// none exists. Tenant scoped.
func (s *OrgService) Membership(rc models.RequestContext, orgID, userID int64) (*models.OrgMember, error) {
	member := &models.OrgMember{}
	err := s.db.QueryRow(`
		SELECT id, tenant_id, organization_id, user_id, role, status, created_at, updated_at
		FROM org_members
		WHERE organization_id = $1 AND user_id = $2 AND tenant_id = $3`,
		orgID, userID, rc.TenantID,
	).Scan(
		&member.ID, &member.TenantID, &member.OrganizationID, &member.UserID,
		&member.Role, &member.Status, &member.CreatedAt, &member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ListMembers returns the organization's memberships, owners first.
func (s *OrgService) ListMembers(rc models.RequestContext, orgID int64) ([]models.OrgMember, error) {
	rows, err := s.db.Query(`
		SELECT id, tenant_id, organization_id, user_id, role, status, created_at, updated_at
		FROM org_members
		WHERE organization_id = $1 AND tenant_id = $2
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, created_at`,
		orgID, rc.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.OrgMember{}
	for rows.Next() {
		var m models.OrgMember
		err := rows.Scan(
			&m.ID, &m.TenantID, &m.OrganizationID, &m.UserID,
			&m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}
