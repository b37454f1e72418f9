// Package access answers "may this caller do that" for every ledger
// operation. Identity itself comes from the upstream auth layer as an
// auth_user_id; the gate only maps it to members, merchants and bindings.
package access

import (
	"context"
	"errors"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var bcryptCost = 12

type Gate struct {
	members   *repository.MemberRepository
	merchants *repository.MerchantRepository
	cards     *repository.CardRepository
	bindings  *repository.CardBindingRepository
}

func NewGate(
	members *repository.MemberRepository,
	merchants *repository.MerchantRepository,
	cards *repository.CardRepository,
	bindings *repository.CardBindingRepository,
) *Gate {
	return &Gate{
		members:   members,
		merchants: merchants,
		cards:     cards,
		bindings:  bindings,
	}
}

// MemberOf maps the caller to its member record.
func (g *Gate) MemberOf(ctx context.Context, caller model.Caller) (*model.Member, error) {
	if caller.AuthUserID == "" {
		return nil, model.NewError(model.KindForbidden, "caller is not authenticated")
	}
	m, err := g.members.GetByAuthUserID(ctx, caller.AuthUserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewError(model.KindForbidden, "caller is not a member")
		}
		return nil, err
	}
	if m.Status != model.MemberStatusActive {
		return nil, model.NewError(model.KindForbidden, "member is not active")
	}
	return m, nil
}

// ResolveMerchant returns the merchant behind code when the caller may act
// for it.
func (g *Gate) ResolveMerchant(ctx context.Context, caller model.Caller, code string) (*model.Merchant, error) {
	merchant, err := g.merchants.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !merchant.Active {
		return nil, model.NewError(model.KindNotMerchantUser, "merchant is not active")
	}
	if caller.AuthUserID == "" {
		return nil, model.NewError(model.KindNotMerchantUser, "caller is not a user of this merchant")
	}
	ok, err := g.merchants.IsUser(ctx, merchant.ID, caller.AuthUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.KindNotMerchantUser, "caller is not a user of this merchant")
	}
	return merchant, nil
}

// AuthorizeCardHolder allows the personal card owner and any bound member
// of an enterprise card. Cards the caller cannot see are reported missing.
func (g *Gate) AuthorizeCardHolder(ctx context.Context, caller model.Caller, card *model.Card) error {
	member, err := g.MemberOf(ctx, caller)
	if err != nil {
		return err
	}
	if card.IsPersonal() && card.Personal.OwnerMemberID == member.ID {
		return nil
	}
	if card.IsEnterprise() {
		if _, err := g.bindings.Get(ctx, card.ID, member.ID); err == nil {
			return nil
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return repository.ErrCardNotFound
}

// AuthorizeCardOwner allows only the owner of a personal card.
func (g *Gate) AuthorizeCardOwner(ctx context.Context, caller model.Caller, card *model.Card) error {
	member, err := g.MemberOf(ctx, caller)
	if err != nil {
		return err
	}
	if !card.IsPersonal() || card.Personal.OwnerMemberID != member.ID {
		return repository.ErrCardNotFound
	}
	return nil
}

// AuthorizeEnterpriseAdmin returns the caller's admin binding on the card.
func (g *Gate) AuthorizeEnterpriseAdmin(ctx context.Context, caller model.Caller, card *model.Card) (*model.CardBinding, error) {
	if !card.IsEnterprise() {
		return nil, repository.ErrCardNotFound
	}
	member, err := g.MemberOf(ctx, caller)
	if err != nil {
		return nil, err
	}
	binding, err := g.bindings.Get(ctx, card.ID, member.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewError(model.KindOnlyEnterpriseAdmin, "caller is not bound to this card")
		}
		return nil, err
	}
	if binding.Role != model.RoleAdmin {
		return nil, model.NewError(model.KindOnlyEnterpriseAdmin, "caller is not an admin of this card")
	}
	return binding, nil
}

func (g *Gate) VerifyCardPassword(card *model.Card, password string) error {
	if !card.IsEnterprise() || card.Enterprise.PasswordHash == "" {
		return model.NewError(model.KindInvalidCardPassword, "card has no binding password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(card.Enterprise.PasswordHash), []byte(password)); err != nil {
		return model.NewError(model.KindInvalidCardPassword, "card password does not match")
	}
	return nil
}

func (g *Gate) AuthorizePlatformAdmin(ctx context.Context, caller model.Caller) error {
	if caller.AuthUserID == "" {
		return model.NewError(model.KindForbidden, "caller is not authenticated")
	}
	ok, err := g.members.IsPlatformAdmin(ctx, caller.AuthUserID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewError(model.KindForbidden, "platform admin required")
	}
	return nil
}

// CanViewMerchant reports whether the caller acts for merchantID.
func (g *Gate) CanViewMerchant(ctx context.Context, caller model.Caller, merchantID int64) (bool, error) {
	if caller.AuthUserID == "" {
		return false, nil
	}
	return g.merchants.IsUser(ctx, merchantID, caller.AuthUserID)
}

// HashCardPassword produces the stored form of an enterprise binding password.
func HashCardPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
