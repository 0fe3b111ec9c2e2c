package payment

import (
	"strings"
	"testing"

	"bookstore-payment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGateway_CallbackVerifies(t *testing.T) {
	cfg := testConfig()
	gw := NewFakeGateway(cfg).WithOutcome(OutcomeComplete)

	req, err := NewRequestBuilder(cfg).Build(testOrder("1000"), "", "")
	require.NoError(t, err)

	payload, err := gw.Submit(req)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "COMPLETE", payload["status"])
	assert.Equal(t, strings.Join(CallbackSignedFields, ","), payload["signed_field_names"])

	ok, err := NewVerifier(cfg).Verify(payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFakeGateway_FollowsConfiguredFields(t *testing.T) {
	cfg := testConfig()
	cfg.CallbackFields = RequestSignedFields
	gw := NewFakeGateway(cfg).WithOutcome(OutcomeComplete)

	req, err := NewRequestBuilder(cfg).Build(testOrder("1000"), "", "")
	require.NoError(t, err)
	payload, err := gw.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, req.SignedFieldNames, payload["signed_field_names"])

	ok, err := NewVerifier(cfg).Verify(payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFakeGateway_RejectsForgedRequest(t *testing.T) {
	cfg := testConfig()
	gw := NewFakeGateway(cfg)

	req, err := NewRequestBuilder(cfg).Build(testOrder("1000"), "", "")
	require.NoError(t, err)
	req.TotalAmount = "1"

	_, err = gw.Submit(req)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestFakeGateway_SubmitIsIdempotent(t *testing.T) {
	cfg := testConfig()
	gw := NewFakeGateway(cfg).WithOutcome(OutcomeCanceled)

	req, err := NewRequestBuilder(cfg).Build(testOrder("1000"), "", "")
	require.NoError(t, err)

	first, err := gw.Submit(req)
	require.NoError(t, err)

	gw.WithOutcome(OutcomeComplete)
	second, err := gw.Submit(req)
	require.NoError(t, err)

	assert.Equal(t, "CANCELED", first["status"])
	assert.Equal(t, first["ref_id"], second["ref_id"])
	assert.Equal(t, first["status"], second["status"])
}

func TestFakeGateway_SetStatus(t *testing.T) {
	cfg := testConfig()
	gw := NewFakeGateway(cfg).WithOutcome(OutcomeLostCallback)

	req, err := NewRequestBuilder(cfg).Build(testOrder("1000"), "", "")
	require.NoError(t, err)
	_, err = gw.Submit(req)
	require.NoError(t, err)

	gw.SetStatus(req.TransactionUUID, "PENDING")
	payload, err := gw.Callback(req.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", payload["status"])

	_, err = gw.Callback("nope")
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}
