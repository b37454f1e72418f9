package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CardType string

const (
	CardTypePersonal   CardType = "personal"
	CardTypeEnterprise CardType = "enterprise"
)

func (t CardType) Valid() bool {
	return t == CardTypePersonal || t == CardTypeEnterprise
}

type CardStatus string

const (
	CardStatusActive    CardStatus = "active"
	CardStatusInactive  CardStatus = "inactive"
	CardStatusSuspended CardStatus = "suspended"
	CardStatusExpired   CardStatus = "expired"
	CardStatusDeleted   CardStatus = "deleted"
)

func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusActive, CardStatusInactive, CardStatusSuspended, CardStatusExpired, CardStatusDeleted:
		return true
	}
	return false
}

// Card is the balance holding account. Exactly one of Personal or
// Enterprise is set, matching Type.
type Card struct {
	ID         int64           `json:"card_id"`
	CardNo     string          `json:"card_no"`
	Type       CardType        `json:"card_type"`
	Status     CardStatus      `json:"status"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	Version    int64           `json:"-"`
	Personal   *PersonalCard   `json:"personal,omitempty"`
	Enterprise *EnterpriseCard `json:"enterprise,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type PersonalCard struct {
	OwnerMemberID int64 `json:"owner_member_id"`
	Points        int64 `json:"points"`
	Level         int   `json:"level"`
}

type EnterpriseCard struct {
	// FixedDiscount nil means no discount.
	FixedDiscount *decimal.Decimal `json:"fixed_discount,omitempty"`
	PasswordHash  string           `json:"-"`
}

func (c *Card) IsActive() bool {
	return c.Status == CardStatusActive
}

func (c *Card) IsPersonal() bool {
	return c.Type == CardTypePersonal && c.Personal != nil
}

func (c *Card) IsEnterprise() bool {
	return c.Type == CardTypeEnterprise && c.Enterprise != nil
}

// CardView is one row of get_user_cards.
type CardView struct {
	Card
	Discount decimal.Decimal `json:"discount"`
	Role     BindingRole     `json:"role,omitempty"`
}

type BindingRole string

const (
	RoleAdmin  BindingRole = "admin"
	RoleMember BindingRole = "member"
)

func (r BindingRole) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type CardBinding struct {
	ID        int64       `json:"id"`
	CardID    int64       `json:"card_id"`
	MemberID  int64       `json:"member_id"`
	MemberNo  string      `json:"member_no,omitempty"`
	Role      BindingRole `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}
