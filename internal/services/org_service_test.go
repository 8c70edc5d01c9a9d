package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/nexushours/backend/internal/models"
)

func TestOrgService_InitializeOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrgService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 10}

	t.Run("first call creates owner membership", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO org_members").
			WithArgs(int64(1), int64(7), int64(10), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.InitializeOwner(rc, 7, 10)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat call converges on the same state", func(t *testing.T) {
		// ON CONFLICT path still reports one affected row.
		mock.ExpectExec("INSERT INTO org_members").
			WithArgs(int64(1), int64(7), int64(10), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.InitializeOwner(rc, 7, 10)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrgService_EnsureWallet(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrgService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 10}

	t.Run("creates wallet when missing", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO org_wallets").
			WithArgs(int64(1), int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.EnsureWallet(rc, 7)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing wallet untouched", func(t *testing.T) {
		// DO NOTHING: zero rows affected, still no error.
		mock.ExpectExec("INSERT INTO org_wallets").
			WithArgs(int64(1), int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.EnsureWallet(rc, 7)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrgService_Membership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrgService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 10}

	t.Run("existing membership", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_members").
			WithArgs(int64(7), int64(10), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "organization_id", "user_id", "role", "status", "created_at", "updated_at"}).
				AddRow(3, 1, 7, 10, "admin", "active", time.Now(), time.Now()))

		member, err := service.Membership(rc, 7, 10)
		assert.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, member.Role)
		assert.Equal(t, models.MemberActive, member.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no membership returns nil without error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_members").
			WithArgs(int64(7), int64(99), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "organization_id", "user_id", "role", "status", "created_at", "updated_at"}))

		member, err := service.Membership(rc, 7, 99)
		assert.NoError(t, err)
		assert.Nil(t, member)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrgService_ListMembers(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrgService(db)
	rc := models.RequestContext{TenantID: 1, UserID: 10}

	mock.ExpectQuery("SELECT (.+) FROM org_members").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "organization_id", "user_id", "role", "status", "created_at", "updated_at"}).
			AddRow(1, 1, 7, 10, "owner", "active", time.Now(), time.Now()).
			AddRow(2, 1, 7, 20, "member", "active", time.Now(), time.Now()))

	members, err := service.ListMembers(rc, 7)
	assert.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, models.RoleOwner, members[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
