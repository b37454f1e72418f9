package services

import (
	"context"
	"testing"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardService_GetUserCards(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	rate := dec("0.8")
	corp := e.enterpriseCard(t, &rate, "")
	_, err := e.enterprise.AddMember(ctx, bobCaller, model.MembershipRequest{
		CardNo: corp.CardNo, MemberNo: e.alice.MemberNo, CardPassword: "corp-pass",
	})
	require.NoError(t, err)

	views, err := e.cardSvc.GetUserCards(ctx, aliceCaller)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, e.personal.ID, views[0].ID)
	assert.True(t, dec("0.9").Equal(views[0].Discount))
	assert.Empty(t, views[0].Role)

	assert.Equal(t, corp.ID, views[1].ID)
	assert.True(t, dec("0.8").Equal(views[1].Discount))
	assert.Equal(t, model.RoleMember, views[1].Role)

	views, err = e.cardSvc.GetUserCards(ctx, bobCaller)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.RoleAdmin, views[0].Role)

	_, err = e.cardSvc.GetUserCards(ctx, model.Caller{})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestCardService_UpdateStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.cardSvc.UpdateStatus(ctx, aliceCaller, e.personal.ID, model.CardStatusSuspended)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.cardSvc.UpdateStatus(ctx, opsCaller, e.personal.ID, "frozen")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	card, err := e.cardSvc.UpdateStatus(ctx, opsCaller, e.personal.ID, model.CardStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, model.CardStatusSuspended, card.Status)

	card, err = e.cardSvc.UpdateStatus(ctx, opsCaller, e.personal.ID, model.CardStatusDeleted)
	require.NoError(t, err)
	assert.Equal(t, model.CardStatusDeleted, card.Status)

	_, err = e.cardSvc.UpdateStatus(ctx, opsCaller, e.personal.ID, model.CardStatusActive)
	assert.ErrorIs(t, err, model.ErrCardNotActive)

	views, err := e.cardSvc.GetUserCards(ctx, aliceCaller)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCardService_AdjustPoints(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	card, err := e.cardSvc.AdjustPoints(ctx, opsCaller, e.personal.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), card.Personal.Points)
	assert.Equal(t, 3, card.Personal.Level)

	card, err = e.cardSvc.AdjustPoints(ctx, opsCaller, e.personal.ID, -10500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), card.Personal.Points)
	assert.Equal(t, 0, card.Personal.Level)

	_, err = e.cardSvc.AdjustPoints(ctx, opsCaller, e.personal.ID, -501)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	corp := e.enterpriseCard(t, nil, "")
	_, err = e.cardSvc.AdjustPoints(ctx, opsCaller, corp.ID, 10)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = e.cardSvc.AdjustPoints(ctx, aliceCaller, e.personal.ID, 10)
	assert.ErrorIs(t, err, model.ErrForbidden)
}
