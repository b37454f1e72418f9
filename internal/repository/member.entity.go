package repository

import (
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
)

type MemberEntity struct {
	ID         int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	MemberNo   string    `db:"member_no"    gorm:"column:member_no;not null;uniqueIndex"`
	AuthUserID string    `db:"auth_user_id" gorm:"column:auth_user_id;not null;uniqueIndex"`
	Name       string    `db:"name"         gorm:"column:name;not null"`
	Status     string    `db:"status"       gorm:"column:status;not null"`
	CreatedAt  time.Time `db:"created_at"   gorm:"column:created_at;not null"`
}

func (MemberEntity) TableName() string {
	return "members"
}

type PlatformAdminEntity struct {
	ID         int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	AuthUserID string    `db:"auth_user_id" gorm:"column:auth_user_id;not null;uniqueIndex"`
	CreatedAt  time.Time `db:"created_at"   gorm:"column:created_at;not null"`
}

func (PlatformAdminEntity) TableName() string {
	return "platform_admins"
}

func toMemberEntity(m *model.Member) *MemberEntity {
	if m == nil {
		return nil
	}
	return &MemberEntity{
		ID:         m.ID,
		MemberNo:   m.MemberNo,
		AuthUserID: m.AuthUserID,
		Name:       m.Name,
		Status:     string(m.Status),
		CreatedAt:  m.CreatedAt,
	}
}

func toMemberModel(e *MemberEntity) *model.Member {
	if e == nil {
		return nil
	}
	return &model.Member{
		ID:         e.ID,
		MemberNo:   e.MemberNo,
		AuthUserID: e.AuthUserID,
		Name:       e.Name,
		Status:     model.MemberStatus(e.Status),
		CreatedAt:  e.CreatedAt,
	}
}
