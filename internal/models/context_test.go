package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestContextRoundTrip(t *testing.T) {
	rc := RequestContext{TenantID: 4, UserID: 10}
	ctx := WithRequestContext(context.Background(), rc)

	got, err := RequestContextFrom(ctx)
	assert.NoError(t, err)
	assert.Equal(t, rc, got)
}

func TestRequestContextMissing(t *testing.T) {
	_, err := RequestContextFrom(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestContext)
}

func TestTransferRequestStatusTerminal(t *testing.T) {
	assert.False(t, RequestPending.Terminal())
	assert.True(t, RequestApproved.Terminal())
	assert.True(t, RequestRejected.Terminal())
	assert.True(t, RequestCancelled.Terminal())
}

func TestAlertStatusTerminal(t *testing.T) {
	assert.False(t, AlertNew.Terminal())
	assert.False(t, AlertReviewing.Terminal())
	assert.True(t, AlertResolved.Terminal())
	assert.True(t, AlertDismissed.Terminal())
}
