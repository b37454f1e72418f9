package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQrService_Rotate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	issue, err := e.qr.Rotate(ctx, aliceCaller, e.personal.ID, model.CardTypePersonal)
	require.NoError(t, err)
	assert.Len(t, issue.Plain, 43)
	assert.True(t, e.clock.Now().Add(DefaultQrTTL).Equal(issue.ExpiresAt), issue.ExpiresAt.String())

	token, err := e.tokens.GetByDigest(ctx, qrDigest(issue.Plain))
	require.NoError(t, err)
	assert.NotEqual(t, issue.Plain, token.Digest)
	assert.Equal(t, model.QrStatusActive, token.Status)

	next, err := e.qr.Rotate(ctx, aliceCaller, e.personal.ID, model.CardTypePersonal)
	require.NoError(t, err)
	assert.NotEqual(t, issue.Plain, next.Plain)

	_, err = e.qr.Inspect(ctx, issue.Plain)
	assert.ErrorIs(t, err, model.ErrQrInvalid)
	_, err = e.qr.Inspect(ctx, next.Plain)
	assert.NoError(t, err)
}

func TestQrService_RotateRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.qr.Rotate(ctx, aliceCaller, e.personal.ID, "gift")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = e.qr.Rotate(ctx, aliceCaller, e.personal.ID, model.CardTypeEnterprise)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = e.qr.Rotate(ctx, bobCaller, e.personal.ID, model.CardTypePersonal)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.qr.Rotate(ctx, aliceCaller, 9999, model.CardTypePersonal)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.cards.UpdateStatus(ctx, e.personal.ID, model.CardStatusSuspended)
	require.NoError(t, err)
	_, err = e.qr.Rotate(ctx, aliceCaller, e.personal.ID, model.CardTypePersonal)
	assert.ErrorIs(t, err, model.ErrCardNotActive)
}

func TestQrService_Inspect(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	plain := e.rotate(t, aliceCaller, e.personal)

	_, err := e.qr.Inspect(ctx, "short")
	assert.ErrorIs(t, err, model.ErrQrInvalid)

	_, err = e.qr.Inspect(ctx, "this-token-was-never-issued-by-anyone")
	assert.ErrorIs(t, err, model.ErrQrInvalid)

	e.clock.Advance(DefaultQrTTL - time.Second)
	_, err = e.qr.Inspect(ctx, plain)
	assert.NoError(t, err)

	// expires exactly at expires_at
	e.clock.Advance(time.Second)
	_, err = e.qr.Inspect(ctx, plain)
	assert.ErrorIs(t, err, model.ErrQrExpired)
}

func TestQrService_ExpiryReportedBeforeConsumption(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	plain := e.rotate(t, aliceCaller, e.personal)

	_, err := e.qr.ValidateAndConsume(ctx, plain)
	require.NoError(t, err)
	_, err = e.qr.ValidateAndConsume(ctx, plain)
	assert.ErrorIs(t, err, model.ErrQrInvalid)

	e.clock.Advance(time.Hour)
	_, err = e.qr.ValidateAndConsume(ctx, plain)
	assert.ErrorIs(t, err, model.ErrQrExpired)
}

func TestQrService_RevokeAndHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first := e.rotate(t, aliceCaller, e.personal)
	e.clock.Advance(time.Minute)
	second := e.rotate(t, aliceCaller, e.personal)

	n, err := e.qr.Revoke(ctx, aliceCaller, e.personal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = e.qr.Inspect(ctx, second)
	assert.ErrorIs(t, err, model.ErrQrInvalid)

	history, err := e.qr.History(ctx, aliceCaller, e.personal.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, qrDigest(second), history[0].Digest)
	assert.Equal(t, qrDigest(first), history[1].Digest)
	for _, tok := range history {
		assert.Equal(t, model.QrStatusRevoked, tok.Status)
	}

	_, err = e.qr.History(ctx, bobCaller, e.personal.ID, 10)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = e.qr.Revoke(ctx, bobCaller, e.personal.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestQrService_SweepExpired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	other := e.personalCard(t, e.alice, "0", 0)
	e.rotate(t, aliceCaller, e.personal)
	e.rotate(t, aliceCaller, other)

	n, err := e.qr.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(DefaultQrTTL)
	n, err = e.qr.SweepExpired(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.qr.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	history, err := e.qr.History(ctx, aliceCaller, other.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.QrStatusExpired, history[0].Status)
}
