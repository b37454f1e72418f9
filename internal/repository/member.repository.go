package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"gorm.io/gorm"
)

var ErrMemberNotFound = model.NewError(model.KindNotFound, "member not found")

type MemberRepository struct {
	*pg.DB
}

func NewMemberRepository(db *pg.DB) *MemberRepository {
	return &MemberRepository{
		db,
	}
}

func (r *MemberRepository) Create(ctx context.Context, m *model.Member) (*model.Member, error) {
	entity := toMemberEntity(m)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toMemberModel(entity), nil
}

func (r *MemberRepository) GetByAuthUserID(ctx context.Context, authUserID string) (*model.Member, error) {
	return r.first(r.Read(ctx).Where("auth_user_id = ?", authUserID))
}

func (r *MemberRepository) GetByMemberNo(ctx context.Context, memberNo string) (*model.Member, error) {
	return r.first(r.Read(ctx).Where("member_no = ?", memberNo))
}

func (r *MemberRepository) first(q *gorm.DB) (*model.Member, error) {
	var entity MemberEntity
	if err := q.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return toMemberModel(&entity), nil
}

func (r *MemberRepository) IsPlatformAdmin(ctx context.Context, authUserID string) (bool, error) {
	var n int64
	err := r.Read(ctx).
		Model(&PlatformAdminEntity{}).
		Where("auth_user_id = ?", authUserID).
		Count(&n).
		Error
	return n > 0, err
}

func (r *MemberRepository) AddPlatformAdmin(ctx context.Context, authUserID string) error {
	return r.Write(ctx).Create(&PlatformAdminEntity{AuthUserID: authUserID}).Error
}
