package services

import (
	"context"
	"testing"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterpriseService_CreateCard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	rate := dec("0.85")
	card, err := e.enterprise.CreateEnterpriseCard(ctx, bobCaller, model.CreateEnterpriseCardRequest{
		Name: "  ACME  ", Password: "corp-pass", FixedDiscount: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CardTypeEnterprise, card.Type)
	assert.Equal(t, "ACME", card.Name)
	assert.Regexp(t, `^EC[0-9A-F]{16}$`, card.CardNo)
	assert.True(t, card.Balance.IsZero())
	assert.NotEqual(t, "corp-pass", card.Enterprise.PasswordHash)

	members, err := e.enterprise.ListMembers(ctx, bobCaller, card.CardNo)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, e.bob.ID, members[0].MemberID)
	assert.Equal(t, model.RoleAdmin, members[0].Role)

	tooHigh := dec("1.5")
	bad := []model.CreateEnterpriseCardRequest{
		{Name: "", Password: "corp-pass"},
		{Name: "ACME", Password: "short"},
		{Name: "ACME", Password: "corp-pass", FixedDiscount: &tooHigh},
	}
	for _, req := range bad {
		_, err := e.enterprise.CreateEnterpriseCard(ctx, bobCaller, req)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	}

	_, err = e.enterprise.CreateEnterpriseCard(ctx, model.Caller{AuthUserID: "u-stranger"}, model.CreateEnterpriseCardRequest{Name: "X", Password: "corp-pass"})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestEnterpriseService_Membership(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	card := e.enterpriseCard(t, nil, "")
	carol := e.member(t, "M-CAROL", "u-carol")
	carolCaller := model.Caller{AuthUserID: "u-carol"}

	req := func(memberNo string) model.MembershipRequest {
		return model.MembershipRequest{CardNo: card.CardNo, MemberNo: memberNo, CardPassword: "corp-pass"}
	}

	ok, err := e.enterprise.AddMember(ctx, bobCaller, req(e.alice.MemberNo))
	require.NoError(t, err)
	assert.True(t, ok)

	// binding twice is a no-op
	ok, err = e.enterprise.AddMember(ctx, bobCaller, req(e.alice.MemberNo))
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := e.enterprise.ListMembers(ctx, aliceCaller, card.CardNo)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, e.alice.MemberNo, members[1].MemberNo)
	assert.Equal(t, model.RoleMember, members[1].Role)

	_, err = e.enterprise.ListMembers(ctx, carolCaller, card.CardNo)
	assert.ErrorIs(t, err, model.ErrNotFound)

	wrong := req(carol.MemberNo)
	wrong.CardPassword = "guess"
	_, err = e.enterprise.AddMember(ctx, bobCaller, wrong)
	assert.ErrorIs(t, err, model.ErrInvalidCardPassword)

	_, err = e.enterprise.AddMember(ctx, aliceCaller, req(carol.MemberNo))
	assert.ErrorIs(t, err, model.ErrOnlyEnterpriseAdmin)

	_, err = e.enterprise.AddMember(ctx, bobCaller, req("M-NOBODY"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.enterprise.AddMember(ctx, bobCaller, model.MembershipRequest{CardNo: e.personal.CardNo, MemberNo: carol.MemberNo, CardPassword: "corp-pass"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err = e.enterprise.RemoveMember(ctx, bobCaller, req(e.alice.MemberNo))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.enterprise.RemoveMember(ctx, bobCaller, req(e.alice.MemberNo))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEnterpriseService_LastAdminStays(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	card := e.enterpriseCard(t, nil, "")
	req := func(memberNo string) model.MembershipRequest {
		return model.MembershipRequest{CardNo: card.CardNo, MemberNo: memberNo, CardPassword: "corp-pass"}
	}

	_, err := e.enterprise.RemoveMember(ctx, bobCaller, req(e.bob.MemberNo))
	assert.ErrorIs(t, err, model.ErrCannotRemoveLastAdmin)

	_, err = e.enterprise.SetMemberRole(ctx, bobCaller, req(e.bob.MemberNo), model.RoleMember)
	assert.ErrorIs(t, err, model.ErrCannotRemoveLastAdmin)

	_, err = e.enterprise.AddMember(ctx, bobCaller, req(e.alice.MemberNo))
	require.NoError(t, err)
	ok, err := e.enterprise.SetMemberRole(ctx, bobCaller, req(e.alice.MemberNo), model.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	// with a second admin bob may step down
	_, err = e.enterprise.RemoveMember(ctx, aliceCaller, req(e.bob.MemberNo))
	require.NoError(t, err)

	_, err = e.enterprise.RemoveMember(ctx, aliceCaller, req(e.alice.MemberNo))
	assert.ErrorIs(t, err, model.ErrCannotRemoveLastAdmin)

	_, err = e.enterprise.SetMemberRole(ctx, aliceCaller, req(e.alice.MemberNo), "owner")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	admins, err := e.bindings.CountAdmins(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)
}
