package services

import (
	"context"
	"sort"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/shopspring/decimal"
)

var noDiscount = decimal.NewFromInt(1)

type DiscountService struct {
	levels MembershipLevelRepository
}

func NewDiscountService(levels MembershipLevelRepository) *DiscountService {
	return &DiscountService{
		levels: levels,
	}
}

// Levels loads the level table sorted by min_points and refuses tables
// with overlapping brackets or out of range rates.
func (s *DiscountService) Levels(ctx context.Context) ([]model.MembershipLevel, error) {
	levels, err := s.levels.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].MinPoints < levels[j].MinPoints
	})
	for i, l := range levels {
		if err := model.ValidRate(l.Discount); err != nil {
			return nil, model.Errorf(model.KindInvalidInput, "level %d: discount %s outside (0, 1]", l.Level, l.Discount)
		}
		if l.MaxPoints != nil && *l.MaxPoints <= l.MinPoints {
			return nil, model.Errorf(model.KindAmbiguousLevelConfig, "level %d has an empty point range", l.Level)
		}
		for _, o := range levels[i+1:] {
			if l.Overlaps(o) {
				return nil, model.Errorf(model.KindAmbiguousLevelConfig, "levels %d and %d overlap", l.Level, o.Level)
			}
		}
	}
	return levels, nil
}

// LevelFor returns the level whose bracket holds points, or nil.
func (s *DiscountService) LevelFor(ctx context.Context, points int64) (*model.MembershipLevel, error) {
	levels, err := s.Levels(ctx)
	if err != nil {
		return nil, err
	}
	return levelFor(levels, points), nil
}

func levelFor(levels []model.MembershipLevel, points int64) *model.MembershipLevel {
	var found *model.MembershipLevel
	for i := range levels {
		if levels[i].Contains(points) {
			found = &levels[i]
		}
	}
	return found
}

// ComputeDiscount returns the rate charged to card, in (0, 1]. Enterprise
// cards use their fixed discount, personal cards their level's discount.
// The two never combine.
func (s *DiscountService) ComputeDiscount(ctx context.Context, card *model.Card) (decimal.Decimal, error) {
	switch {
	case card.IsEnterprise():
		if card.Enterprise.FixedDiscount == nil {
			return noDiscount, nil
		}
		rate := *card.Enterprise.FixedDiscount
		if err := model.ValidRate(rate); err != nil {
			return decimal.Zero, err
		}
		return rate, nil
	case card.IsPersonal():
		level, err := s.LevelFor(ctx, card.Personal.Points)
		if err != nil {
			return decimal.Zero, err
		}
		if level == nil {
			return noDiscount, nil
		}
		return level.Discount, nil
	}
	return decimal.Zero, model.Errorf(model.KindInvalidInput, "card %d has no %s attributes", card.ID, card.Type)
}

// FinalAmount applies rate to raw and rounds to currency precision.
func FinalAmount(raw, rate decimal.Decimal) decimal.Decimal {
	return raw.Mul(rate).Round(2)
}
