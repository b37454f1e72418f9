package repository

import (
	"context"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"gorm.io/gorm/clause"
)

type MembershipLevelRepository struct {
	*pg.DB
}

func NewMembershipLevelRepository(db *pg.DB) *MembershipLevelRepository {
	return &MembershipLevelRepository{
		db,
	}
}

// List returns the level table ordered by min_points ascending.
func (r *MembershipLevelRepository) List(ctx context.Context) ([]model.MembershipLevel, error) {
	var entities []*MembershipLevelEntity
	if err := r.Read(ctx).Order("min_points ASC").Order("level ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	levels := make([]model.MembershipLevel, len(entities))
	for i, e := range entities {
		levels[i] = toMembershipLevelModel(e)
	}
	return levels, nil
}

// Upsert writes a level, replacing the row with the same level number.
func (r *MembershipLevelRepository) Upsert(ctx context.Context, level model.MembershipLevel) error {
	return r.Write(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toMembershipLevelEntity(level)).
		Error
}
