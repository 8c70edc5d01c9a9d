package migrations

import (
	"database/sql"
	"fmt"
)

// Step is one idempotent migration unit. Every statement checks current
// schema state first (IF NOT EXISTS / ON CONFLICT), so re-running the whole
// set is always safe, including concurrently.
type Step struct {
	Name string
	Run  func(db *sql.DB) error
}

// All returns the migration steps in dependency order.
func All() []Step {
	return []Step{
		{"create tenants table", createTenants},
		{"create users table", createUsers},
		{"create organizations table", createOrganizations},
		{"create org_wallets table", createOrgWallets},
		{"create org_members table", createOrgMembers},
		{"create transactions table", createTransactions},
		{"create ledger_entries table", createLedgerEntries},
		{"create org_transfer_requests table", createTransferRequests},
		{"create abuse_alerts table", createAbuseAlerts},
		{"create exchanges table", createExchanges},
		{"create reviews table", createReviews},
		{"create federation_partnerships table", createFederation},
		{"backfill organization wallets", backfillWallets},
		{"backfill organization owners", backfillOwners},
	}
}

// Apply runs all steps against db, reporting progress through report.
// The first infrastructure failure aborts and is returned.
func Apply(db *sql.DB, report func(name string, err error)) error {
	for _, step := range All() {
		err := step.Run(db)
		report(step.Name, err)
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	return nil
}

func createTenants(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tenants (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			subdomain VARCHAR(63) NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createUsers(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			email VARCHAR(255) NOT NULL,
			password_hash TEXT NOT NULL,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			balance NUMERIC(12,2) NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, email)
		)`); err != nil {
		return err
	}

	// Wallet columns were added after the first deployment; keep the ALTERs
	// for databases created from the old shape.
	if _, err := db.Exec(`ALTER TABLE users ADD COLUMN IF NOT EXISTS balance NUMERIC(12,2) NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	_, err := db.Exec(`ALTER TABLE users ADD COLUMN IF NOT EXISTS version INTEGER NOT NULL DEFAULT 0`)
	return err
}

func createOrganizations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS organizations (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			name VARCHAR(255) NOT NULL,
			created_by BIGINT REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createOrgWallets(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS org_wallets (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (organization_id)
		)`)
	return err
}

func createOrgMembers(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS org_members (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			role VARCHAR(20) NOT NULL DEFAULT 'member',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (organization_id, user_id)
		)`)
	return err
}

func createTransactions(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			transaction_id UUID NOT NULL UNIQUE,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			sender_id BIGINT NOT NULL,
			sender_type VARCHAR(20) NOT NULL,
			receiver_id BIGINT NOT NULL,
			receiver_type VARCHAR(20) NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL DEFAULT '',
			exchange_id BIGINT,
			transfer_request_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createLedgerEntries(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			transaction_id UUID NOT NULL REFERENCES transactions(transaction_id),
			account_id BIGINT NOT NULL,
			account_type VARCHAR(20) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			entry_type VARCHAR(10) NOT NULL,
			balance NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createTransferRequests(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS org_transfer_requests (
			id BIGSERIAL PRIMARY KEY,
			request_id UUID NOT NULL UNIQUE,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			requester_id BIGINT NOT NULL REFERENCES users(id),
			recipient_id BIGINT NOT NULL REFERENCES users(id),
			direction VARCHAR(20) NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			approved_by BIGINT REFERENCES users(id),
			approved_at TIMESTAMPTZ,
			rejection_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createAbuseAlerts(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS abuse_alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_id UUID NOT NULL UNIQUE,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			transaction_id UUID,
			user_id BIGINT,
			rule_name VARCHAR(100) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'new',
			details JSONB NOT NULL DEFAULT '{}',
			resolved_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createExchanges(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			provider_id BIGINT NOT NULL REFERENCES users(id),
			receiver_id BIGINT NOT NULL REFERENCES users(id),
			time_credits NUMERIC(12,2) NOT NULL CHECK (time_credits > 0),
			title VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'accepted',
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func createReviews(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
			reviewer_id BIGINT NOT NULL REFERENCES users(id),
			reviewee_id BIGINT NOT NULL REFERENCES users(id),
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (exchange_id, reviewer_id)
		)`)
	return err
}

func createFederation(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS federation_partnerships (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			partner_tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			allow_directory BOOLEAN NOT NULL DEFAULT FALSE,
			allow_messaging BOOLEAN NOT NULL DEFAULT FALSE,
			allow_transactions BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, partner_tenant_id)
		)`)
	return err
}

// backfillWallets provisions zero-balance wallets for organizations created
// before the wallet feature shipped.
func backfillWallets(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO org_wallets (tenant_id, organization_id, balance, version)
		SELECT o.tenant_id, o.id, 0, 0
		FROM organizations o
		ON CONFLICT (organization_id) DO NOTHING`)
	return err
}

// backfillOwners promotes each organization's creator to owner where no
// owner membership exists yet.
func backfillOwners(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO org_members (tenant_id, organization_id, user_id, role, status)
		SELECT o.tenant_id, o.id, o.created_by, 'owner', 'active'
		FROM organizations o
		WHERE o.created_by IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM org_members m
			WHERE m.organization_id = o.id AND m.role = 'owner'
		  )
		ON CONFLICT (organization_id, user_id)
		DO UPDATE SET role = 'owner', status = 'active'`)
	return err
}
