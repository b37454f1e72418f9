package services

import (
	"context"
	"sort"

	"github.com/nimasrn/card-ledger/internal/model"
)

type CardService struct {
	cards    CardRepository
	bindings CardBindingRepository
	discount *DiscountService
	gate     Gate
}

func NewCardService(cards CardRepository, bindings CardBindingRepository, discount *DiscountService, gate Gate) *CardService {
	return &CardService{
		cards:    cards,
		bindings: bindings,
		discount: discount,
		gate:     gate,
	}
}

// GetUserCards lists every card the caller owns or is bound to, with the
// discount that would apply right now.
func (s *CardService) GetUserCards(ctx context.Context, caller model.Caller) ([]*model.CardView, error) {
	member, err := s.gate.MemberOf(ctx, caller)
	if err != nil {
		return nil, err
	}

	owned, err := s.cards.ListOwnedBy(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	bindings, err := s.bindings.ListByMember(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	roles := make(map[int64]model.BindingRole, len(bindings))
	ids := make([]int64, 0, len(bindings))
	for _, b := range bindings {
		roles[b.CardID] = b.Role
		ids = append(ids, b.CardID)
	}
	bound, err := s.cards.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	levels, err := s.discount.Levels(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*model.CardView, 0, len(owned)+len(bound))
	for _, c := range append(owned, bound...) {
		view := &model.CardView{Card: *c, Discount: noDiscount, Role: roles[c.ID]}
		switch {
		case c.IsPersonal():
			if l := levelFor(levels, c.Personal.Points); l != nil {
				view.Discount = l.Discount
			}
		case c.IsEnterprise() && c.Enterprise.FixedDiscount != nil:
			view.Discount = *c.Enterprise.FixedDiscount
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

// UpdateStatus freezes, unfreezes, suspends or soft-deletes a card.
func (s *CardService) UpdateStatus(ctx context.Context, caller model.Caller, cardID int64, status model.CardStatus) (*model.Card, error) {
	if !status.Valid() {
		return nil, model.Errorf(model.KindInvalidInput, "unknown card status %q", status)
	}
	if err := s.gate.AuthorizePlatformAdmin(ctx, caller); err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status == model.CardStatusDeleted {
		return nil, model.NewError(model.KindCardNotActive, "card is deleted")
	}
	return s.cards.UpdateStatus(ctx, card.ID, status)
}

// AdjustPoints moves a personal card's points by delta and recomputes its
// level from the level table.
func (s *CardService) AdjustPoints(ctx context.Context, caller model.Caller, cardID int64, delta int64) (*model.Card, error) {
	if err := s.gate.AuthorizePlatformAdmin(ctx, caller); err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !card.IsPersonal() {
		return nil, model.NewError(model.KindInvalidInput, "points apply to personal cards only")
	}
	points := card.Personal.Points + delta
	if points < 0 {
		return nil, model.Errorf(model.KindInvalidInput, "points would drop below zero (%d)", points)
	}
	level := 0
	l, err := s.discount.LevelFor(ctx, points)
	if err != nil {
		return nil, err
	}
	if l != nil {
		level = l.Level
	}
	return s.cards.SetPoints(ctx, card.ID, points, level)
}

// heldCardIDs returns the ids of cards member owns or is bound to.
func heldCardIDs(ctx context.Context, cards CardRepository, bindings CardBindingRepository, memberID int64) ([]int64, error) {
	owned, err := cards.ListOwnedBy(ctx, memberID)
	if err != nil {
		return nil, err
	}
	bound, err := bindings.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(owned)+len(bound))
	for _, c := range owned {
		ids = append(ids, c.ID)
	}
	for _, b := range bound {
		ids = append(ids, b.CardID)
	}
	return ids, nil
}
