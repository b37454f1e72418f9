package services

import (
	"context"
	"errors"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// PasswordHasher turns a binding password into its stored form.
type PasswordHasher func(password string) (string, error)

type EnterpriseService struct {
	db       Transactor
	cards    CardRepository
	bindings CardBindingRepository
	members  MemberRepository
	gate     Gate
	hash     PasswordHasher
}

func NewEnterpriseService(db Transactor, cards CardRepository, bindings CardBindingRepository, members MemberRepository, gate Gate, hash PasswordHasher) *EnterpriseService {
	return &EnterpriseService{
		db:       db,
		cards:    cards,
		bindings: bindings,
		members:  members,
		gate:     gate,
		hash:     hash,
	}
}

// CreateEnterpriseCard issues an enterprise card whose only admin is the
// caller.
func (s *EnterpriseService) CreateEnterpriseCard(ctx context.Context, caller model.Caller, req model.CreateEnterpriseCardRequest) (*model.Card, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	member, err := s.gate.MemberOf(ctx, caller)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "hash card password", err)
	}

	var created *model.Card
	err = s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		card, err := s.cards.Create(ctx, &model.Card{
			CardNo:  newCardNo(model.CardTypeEnterprise),
			Type:    model.CardTypeEnterprise,
			Status:  model.CardStatusActive,
			Name:    req.Name,
			Balance: decimal.Zero,
			Enterprise: &model.EnterpriseCard{
				FixedDiscount: req.FixedDiscount,
				PasswordHash:  hash,
			},
		})
		if err != nil {
			return err
		}
		if _, err := s.bindings.Create(ctx, &model.CardBinding{
			CardID:   card.ID,
			MemberID: member.ID,
			Role:     model.RoleAdmin,
		}); err != nil {
			return err
		}
		created = card
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("enterprise card created", "card_no", created.CardNo, "admin", member.MemberNo)
	return created, nil
}

// AddMember binds member_no to the card as a plain member. Binding someone
// who is already bound succeeds without changes.
func (s *EnterpriseService) AddMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error) {
	card, target, err := s.authorize(ctx, caller, req)
	if err != nil {
		return false, err
	}
	_, err = s.bindings.Create(ctx, &model.CardBinding{
		CardID:   card.ID,
		MemberID: target.ID,
		Role:     model.RoleMember,
	})
	if err != nil && !errors.Is(err, model.ErrConflict) {
		return false, err
	}
	return true, nil
}

// RemoveMember unbinds member_no. The last admin can never be removed.
func (s *EnterpriseService) RemoveMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error) {
	card, target, err := s.authorize(ctx, caller, req)
	if err != nil {
		return false, err
	}
	err = s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		binding, err := s.lockBinding(ctx, card.ID, target.ID)
		if err != nil {
			return err
		}
		if binding.Role == model.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx, card.ID); err != nil {
				return err
			}
		}
		return s.bindings.Delete(ctx, card.ID, target.ID)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetMemberRole promotes or demotes a bound member.
func (s *EnterpriseService) SetMemberRole(ctx context.Context, caller model.Caller, req model.MembershipRequest, role model.BindingRole) (bool, error) {
	if !role.Valid() {
		return false, model.Errorf(model.KindInvalidInput, "unknown role %q", role)
	}
	card, target, err := s.authorize(ctx, caller, req)
	if err != nil {
		return false, err
	}
	err = s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		binding, err := s.lockBinding(ctx, card.ID, target.ID)
		if err != nil {
			return err
		}
		if binding.Role == role {
			return nil
		}
		if binding.Role == model.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx, card.ID); err != nil {
				return err
			}
		}
		return s.bindings.UpdateRole(ctx, card.ID, target.ID, role)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMembers returns the bindings of an enterprise card to any bound member.
func (s *EnterpriseService) ListMembers(ctx context.Context, caller model.Caller, cardNo string) ([]*model.CardBinding, error) {
	card, err := s.cards.GetCardByNo(ctx, cardNo)
	if err != nil {
		return nil, err
	}
	if !card.IsEnterprise() {
		return nil, model.NewError(model.KindNotFound, "enterprise card not found")
	}
	if err := s.gate.AuthorizeCardHolder(ctx, caller, card); err != nil {
		return nil, err
	}
	return s.bindings.ListByCard(ctx, card.ID)
}

// authorize runs the checks every membership change shares: the card
// password, then the caller's admin role, then the target member.
func (s *EnterpriseService) authorize(ctx context.Context, caller model.Caller, req model.MembershipRequest) (*model.Card, *model.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	card, err := s.cards.GetCardByNo(ctx, req.CardNo)
	if err != nil {
		return nil, nil, err
	}
	if !card.IsEnterprise() {
		return nil, nil, model.NewError(model.KindNotFound, "enterprise card not found")
	}
	if err := s.gate.VerifyCardPassword(card, req.CardPassword); err != nil {
		return nil, nil, err
	}
	if _, err := s.gate.AuthorizeEnterpriseAdmin(ctx, caller, card); err != nil {
		return nil, nil, err
	}
	target, err := s.members.GetByMemberNo(ctx, req.MemberNo)
	if err != nil {
		return nil, nil, err
	}
	return card, target, nil
}

// lockBinding takes the card row lock so admin counting and the change that
// depends on it cannot interleave with another membership change.
func (s *EnterpriseService) lockBinding(ctx context.Context, cardID, memberID int64) (*model.CardBinding, error) {
	if _, err := s.cards.GetCardForUpdate(ctx, cardID); err != nil {
		return nil, err
	}
	return s.bindings.Get(ctx, cardID, memberID)
}

func (s *EnterpriseService) ensureAnotherAdmin(ctx context.Context, cardID int64) error {
	admins, err := s.bindings.CountAdmins(ctx, cardID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return model.NewError(model.KindCannotRemoveLastAdmin, "card must keep at least one admin")
	}
	return nil
}
