package services

import (
	"database/sql"
	"time"

	"github.com/nexushours/backend/internal/audit"
	"github.com/nexushours/backend/internal/models"
)

// FederationService manages the cross-tenant partnership whitelist and its
// per-feature flags. A partnership row exists for each ordered (tenant,
// partner) pair; the ledger asks for the transactions flag before letting a
// transfer cross tenant boundaries.
type FederationService struct {
	db    *sql.DB
	audit *audit.AuditLogger
}

func NewFederationService(db *sql.DB) *FederationService {
	return &FederationService{
		db:    db,
		audit: audit.NewAuditLogger(),
	}
}

// TransactionsAllowed reports whether both tenants whitelist each other with
// the transactions feature enabled and the partnership active.
func (s *FederationService) TransactionsAllowed(tenantID, partnerTenantID int64) (bool, error) {
	return s.allowed(s.db, tenantID, partnerTenantID)
}

// transactionsAllowedTx is the in-transaction variant used by the wallet so
// the federation check shares the transfer's isolation level.
func (s *FederationService) transactionsAllowedTx(tx *sql.Tx, tenantID, partnerTenantID int64) (bool, error) {
	return s.allowed(tx, tenantID, partnerTenantID)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *FederationService) allowed(db queryRower, tenantID, partnerTenantID int64) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM federation_partnerships
		WHERE tenant_id = $1 AND partner_tenant_id = $2
		  AND status = 'active' AND allow_transactions = TRUE`,
		tenantID, partnerTenantID).Scan(&count)
	if err != nil {
		return false, err
	}

	// Both directions must opt in.
	var reverse int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM federation_partnerships
		WHERE tenant_id = $1 AND partner_tenant_id = $2
		  AND status = 'active' AND allow_transactions = TRUE`,
		partnerTenantID, tenantID).Scan(&reverse)
	if err != nil {
		return false, err
	}

	return count > 0 && reverse > 0, nil
}

// UpsertPartnership creates or updates this tenant's side of a partnership.
// Feature-flag changes are audited.
func (s *FederationService) UpsertPartnership(rc models.RequestContext, p models.FederationPartnership) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO federation_partnerships
		(tenant_id, partner_tenant_id, status, allow_directory, allow_messaging, allow_transactions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (tenant_id, partner_tenant_id)
		DO UPDATE SET status = $3, allow_directory = $4, allow_messaging = $5,
		              allow_transactions = $6, updated_at = $7`,
		rc.TenantID, p.PartnerTenantID, p.Status,
		p.AllowDirectory, p.AllowMessaging, p.AllowTransactions, now)
	if err != nil {
		return err
	}

	s.audit.LogFederationChange(rc.TenantID, p.PartnerTenantID, rc.UserID,
		"status="+string(p.Status))
	return nil
}

// Partnerships lists this tenant's partnerships.
func (s *FederationService) Partnerships(rc models.RequestContext) ([]models.FederationPartnership, error) {
	rows, err := s.db.Query(`
		SELECT id, tenant_id, partner_tenant_id, status, allow_directory, allow_messaging,
		       allow_transactions, created_at, updated_at
		FROM federation_partnerships
		WHERE tenant_id = $1
		ORDER BY partner_tenant_id`,
		rc.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	partnerships := []models.FederationPartnership{}
	for rows.Next() {
		var p models.FederationPartnership
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.PartnerTenantID, &p.Status,
			&p.AllowDirectory, &p.AllowMessaging, &p.AllowTransactions,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		partnerships = append(partnerships, p)
	}

	return partnerships, rows.Err()
}
