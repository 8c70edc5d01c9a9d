package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/nexushours/backend/internal/models"
	"github.com/nexushours/backend/internal/services"
)

func federationRequest(method, target, body string, rc models.RequestContext) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(models.WithRequestContext(r.Context(), rc))
}

func TestFederationHandler_UpdatePartnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	handler := NewFederationHandler(services.NewFederationService(db))
	rc := models.RequestContext{TenantID: 1, UserID: 42}

	t.Run("partnership upserted", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO federation_partnerships").
			WithArgs(int64(1), int64(2), models.PartnershipActive, false, false, true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		w := httptest.NewRecorder()
		r := federationRequest(http.MethodPut, "/api/v1/federation/partnerships",
			`{"partnerTenantId":2,"status":"active","allowTransactions":true}`, rc)
		handler.UpdatePartnership(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self federation rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := federationRequest(http.MethodPut, "/api/v1/federation/partnerships",
			`{"partnerTenantId":1,"status":"active"}`, rc)
		handler.UpdatePartnership(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := federationRequest(http.MethodPut, "/api/v1/federation/partnerships",
			`{"partnerTenantId":2,"status":"paused"}`, rc)
		handler.UpdatePartnership(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFederationHandler_ListPartnerships(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	handler := NewFederationHandler(services.NewFederationService(db))
	rc := models.RequestContext{TenantID: 1, UserID: 42}

	mock.ExpectQuery("SELECT (.+) FROM federation_partnerships WHERE tenant_id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "partner_tenant_id", "status", "allow_directory",
			"allow_messaging", "allow_transactions", "created_at", "updated_at",
		}).AddRow(1, 1, 2, "active", true, false, true, time.Now(), time.Now()))

	w := httptest.NewRecorder()
	r := federationRequest(http.MethodGet, "/api/v1/federation/partnerships", "", rc)
	handler.ListPartnerships(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
