package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/nexushours/backend/internal/models"
)

func expectPartnershipCount(mock sqlmock.Sqlmock, tenantID, partnerTenantID int64, count int) {
	mock.ExpectQuery("SELECT COUNT(.+) FROM federation_partnerships").
		WithArgs(tenantID, partnerTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestFederationService_TransactionsAllowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewFederationService(db)

	t.Run("both directions opted in", func(t *testing.T) {
		expectPartnershipCount(mock, 1, 2, 1)
		expectPartnershipCount(mock, 2, 1, 1)

		allowed, err := service.TransactionsAllowed(1, 2)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one sided partnership is not enough", func(t *testing.T) {
		expectPartnershipCount(mock, 1, 2, 1)
		expectPartnershipCount(mock, 2, 1, 0)

		allowed, err := service.TransactionsAllowed(1, 2)
		assert.NoError(t, err)
		assert.False(t, allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no partnership at all", func(t *testing.T) {
		expectPartnershipCount(mock, 1, 3, 0)
		expectPartnershipCount(mock, 3, 1, 0)

		allowed, err := service.TransactionsAllowed(1, 3)
		assert.NoError(t, err)
		assert.False(t, allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFederationService_UpsertPartnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewFederationService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 42}

	mock.ExpectExec("INSERT INTO federation_partnerships").
		WithArgs(int64(1), int64(2), models.PartnershipActive, true, false, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.UpsertPartnership(rc, models.FederationPartnership{
		PartnerTenantID:   2,
		Status:            models.PartnershipActive,
		AllowDirectory:    true,
		AllowMessaging:    false,
		AllowTransactions: true,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFederationService_Partnerships(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewFederationService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 42}

	mock.ExpectQuery("SELECT (.+) FROM federation_partnerships WHERE tenant_id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "partner_tenant_id", "status", "allow_directory",
			"allow_messaging", "allow_transactions", "created_at", "updated_at",
		}).
			AddRow(1, 1, 2, "active", true, false, true, time.Now(), time.Now()).
			AddRow(2, 1, 3, "suspended", false, false, false, time.Now(), time.Now()))

	partnerships, err := service.Partnerships(rc)
	assert.NoError(t, err)
	assert.Len(t, partnerships, 2)
	assert.Equal(t, models.PartnershipActive, partnerships[0].Status)
	assert.Equal(t, models.PartnershipSuspended, partnerships[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
