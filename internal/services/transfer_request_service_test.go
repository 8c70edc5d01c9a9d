package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/nexushours/backend/internal/models"
)

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "request_id", "tenant_id", "organization_id", "requester_id", "recipient_id",
		"direction", "amount", "description", "status", "approved_by", "approved_at",
		"rejection_reason", "created_at", "updated_at",
	})
}

func expectLockRequest(mock sqlmock.Sqlmock, requestID string, status models.TransferRequestStatus) {
	expectLockRequestDirection(mock, requestID, status, models.DirectionOrgToMember)
}

func expectLockRequestDirection(mock sqlmock.Sqlmock, requestID string, status models.TransferRequestStatus, direction models.TransferDirection) {
	mock.ExpectQuery("SELECT (.+) FROM org_transfer_requests WHERE request_id = \\$1 AND tenant_id = \\$2 FOR UPDATE").
		WithArgs(requestID, int64(1)).
		WillReturnRows(requestRows().
			AddRow(55, requestID, 1, 7, 10, 20, direction, "25", "stipend", status,
				nil, nil, nil, time.Now(), time.Now()))
}

func expectApproverLookup(mock sqlmock.Sqlmock, role models.OrgRole, status models.OrgMemberStatus) {
	mock.ExpectQuery("SELECT role, status FROM org_members").
		WithArgs(int64(7), int64(11), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"role", "status"}).AddRow(role, status))
}

func newRequestServiceForTest(t *testing.T) (*TransferRequestService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	wallet := NewWalletService(db, testLedgerConfig(), nil)
	orgs := NewOrgService(db)
	service := NewTransferRequestService(db, nil, wallet, orgs, nil, testLedgerConfig())
	return service, mock, func() { db.Close() }
}

func TestTransferRequestService_Create(t *testing.T) {
	service, mock, closeDB := newRequestServiceForTest(t)
	defer closeDB()

	rc := models.RequestContext{TenantID: 1, UserID: 10}

	t.Run("active member creates pending request", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_members").
			WithArgs(int64(7), int64(10), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "organization_id", "user_id", "role", "status", "created_at", "updated_at"}).
				AddRow(3, 1, 7, 10, models.RoleMember, models.MemberActive, time.Now(), time.Now()))

		mock.ExpectQuery("INSERT INTO org_transfer_requests").
			WithArgs(sqlmock.AnyArg(), int64(1), int64(7), int64(10), int64(20),
				models.DirectionOrgToMember, decimal.NewFromInt(25), "stipend",
				models.RequestPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))

		req, err := service.Create(rc, CreateInput{
			OrganizationID: 7,
			RecipientID:    20,
			Direction:      models.DirectionOrgToMember,
			Amount:         decimal.NewFromInt(25),
			Description:    "stipend",
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(55), req.ID)
		assert.Equal(t, models.RequestPending, req.Status)
		assert.NotEmpty(t, req.RequestID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non member rejected", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_members").
			WithArgs(int64(7), int64(10), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "organization_id", "user_id", "role", "status", "created_at", "updated_at"}))

		_, err := service.Create(rc, CreateInput{
			OrganizationID: 7,
			RecipientID:    20,
			Direction:      models.DirectionOrgToMember,
			Amount:         decimal.NewFromInt(25),
		})
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount rejected before any query", func(t *testing.T) {
		_, err := service.Create(rc, CreateInput{
			OrganizationID: 7,
			RecipientID:    20,
			Direction:      models.DirectionOrgToMember,
			Amount:         decimal.Zero,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestTransferRequestService_Approve(t *testing.T) {
	service, mock, closeDB := newRequestServiceForTest(t)
	defer closeDB()

	rc := models.RequestContext{TenantID: 1, UserID: 11}
	requestID := "req-uuid-1"

	t.Run("approval executes transfer atomically", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		expectApproverLookup(mock, models.RoleAdmin, models.MemberActive)

		// org_to_member: the organization wallet pays the member.
		expectOrgLock(mock, 7, 1, "100", 2)
		expectUserLock(mock, 20, 1, "5", 1)

		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(301))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE org_wallets").
			WithArgs(decimal.NewFromInt(75), sqlmock.AnyArg(), int64(7), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(decimal.NewFromInt(30), sqlmock.AnyArg(), int64(20), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("UPDATE org_transfer_requests").
			WithArgs(models.RequestApproved, int64(11), sqlmock.AnyArg(), int64(55), models.RequestPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txn, err := service.Approve(rc, requestID, 11)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), txn.SenderID)
		assert.Equal(t, models.AccountOrganization, txn.SenderType)
		assert.Equal(t, int64(20), txn.ReceiverID)
		assert.NotNil(t, txn.TransferRequestID)
		assert.Equal(t, int64(55), *txn.TransferRequestID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member_to_org reverses the parties", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequestDirection(mock, requestID, models.RequestPending, models.DirectionMemberToOrg)
		expectApproverLookup(mock, models.RoleOwner, models.MemberActive)

		expectOrgLock(mock, 7, 1, "100", 1)
		expectUserLock(mock, 20, 1, "50", 1)

		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(302))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(decimal.NewFromInt(25), sqlmock.AnyArg(), int64(20), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE org_wallets").
			WithArgs(decimal.NewFromInt(125), sqlmock.AnyArg(), int64(7), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("UPDATE org_transfer_requests").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txn, err := service.Approve(rc, requestID, 11)
		assert.NoError(t, err)
		assert.Equal(t, int64(20), txn.SenderID)
		assert.Equal(t, models.AccountUser, txn.SenderType)
		assert.Equal(t, int64(7), txn.ReceiverID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already approved request rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestApproved)
		mock.ExpectRollback()

		_, err := service.Approve(rc, requestID, 11)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("plain member cannot approve", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		expectApproverLookup(mock, models.RoleMember, models.MemberActive)
		mock.ExpectRollback()

		_, err := service.Approve(rc, requestID, 11)
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("removed admin cannot approve", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		expectApproverLookup(mock, models.RoleAdmin, models.MemberRemoved)
		mock.ExpectRollback()

		_, err := service.Approve(rc, requestID, 11)
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient org funds keeps request pending", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		expectApproverLookup(mock, models.RoleAdmin, models.MemberActive)
		expectOrgLock(mock, 7, 1, "10", 1)
		expectUserLock(mock, 20, 1, "5", 1)
		mock.ExpectRollback()

		_, err := service.Approve(rc, requestID, 11)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown request", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM org_transfer_requests WHERE request_id = \\$1 AND tenant_id = \\$2 FOR UPDATE").
			WithArgs("missing", int64(1)).
			WillReturnRows(requestRows())
		mock.ExpectRollback()

		_, err := service.Approve(rc, "missing", 11)
		assert.ErrorIs(t, err, ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferRequestService_ApproveQueuesForAnalysis(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	wallet := NewWalletService(db, testLedgerConfig(), nil)
	orgs := NewOrgService(db)
	service := NewTransferRequestService(db, redisClient, wallet, orgs, nil, testLedgerConfig())

	rc := models.RequestContext{TenantID: 1, UserID: 11}
	requestID := "req-uuid-9"

	mock.ExpectBegin()
	expectLockRequest(mock, requestID, models.RequestPending)
	expectApproverLookup(mock, models.RoleAdmin, models.MemberActive)
	expectOrgLock(mock, 7, 1, "100", 2)
	expectUserLock(mock, 20, 1, "5", 1)
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(303))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE org_wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE org_transfer_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// The approval-created transaction must reach the abuse analysis
	// queue exactly like a direct transfer would.
	redisMock.Regexp().ExpectRPush("abuse_analysis_queue", `.*`).SetVal(1)

	_, err = service.Approve(rc, requestID, 11)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestTransferRequestService_Reject(t *testing.T) {
	service, mock, closeDB := newRequestServiceForTest(t)
	defer closeDB()

	rc := models.RequestContext{TenantID: 1, UserID: 11}
	requestID := "req-uuid-2"

	t.Run("pending request rejected with reason", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		expectApproverLookup(mock, models.RoleOwner, models.MemberActive)
		mock.ExpectExec("UPDATE org_transfer_requests").
			WithArgs(models.RequestRejected, int64(11), "budget exceeded", sqlmock.AnyArg(), int64(55), models.RequestPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Reject(rc, requestID, 11, "budget exceeded")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal state cannot be rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestCancelled)
		mock.ExpectRollback()

		err := service.Reject(rc, requestID, 11, "late")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferRequestService_Cancel(t *testing.T) {
	service, mock, closeDB := newRequestServiceForTest(t)
	defer closeDB()

	rc := models.RequestContext{TenantID: 1, UserID: 10}
	requestID := "req-uuid-3"

	t.Run("requester cancels, no transaction created", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		mock.ExpectExec("UPDATE org_transfer_requests").
			WithArgs(models.RequestCancelled, sqlmock.AnyArg(), int64(55), models.RequestPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Cancel(rc, requestID, 10)
		assert.NoError(t, err)
		// No INSERT INTO transactions was expected; ExpectationsWereMet
		// proves no balance movement happened.
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only the requester may cancel", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestPending)
		mock.ExpectRollback()

		err := service.Cancel(rc, requestID, 99)
		assert.ErrorIs(t, err, ErrNotRequester)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approved request cannot be cancelled", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockRequest(mock, requestID, models.RequestApproved)
		mock.ExpectRollback()

		err := service.Cancel(rc, requestID, 10)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferRequestService_List(t *testing.T) {
	service, mock, closeDB := newRequestServiceForTest(t)
	defer closeDB()

	rc := models.RequestContext{TenantID: 1, UserID: 10}

	t.Run("status filter applied", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_transfer_requests WHERE tenant_id = \\$1 AND organization_id = \\$2 AND status = \\$3").
			WithArgs(int64(1), int64(7), "pending", 20).
			WillReturnRows(requestRows().
				AddRow(55, "req-a", 1, 7, 10, 20, models.DirectionOrgToMember, "25", "", models.RequestPending,
					nil, nil, nil, time.Now(), time.Now()))

		requests, err := service.List(rc, 7, "pending", 20)
		assert.NoError(t, err)
		assert.Len(t, requests, 1)
		assert.Equal(t, models.RequestPending, requests[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is an empty slice", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM org_transfer_requests WHERE tenant_id = \\$1 AND organization_id = \\$2").
			WithArgs(int64(1), int64(7), 20).
			WillReturnRows(requestRows())

		requests, err := service.List(rc, 7, "", 20)
		assert.NoError(t, err)
		assert.NotNil(t, requests)
		assert.Empty(t, requests)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
