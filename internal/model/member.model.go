package model

import "time"

// Caller is the identity asserted by the upstream authentication layer.
type Caller struct {
	AuthUserID string
}

type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusSuspended MemberStatus = "suspended"
)

type Member struct {
	ID         int64        `json:"member_id"`
	MemberNo   string       `json:"member_no"`
	AuthUserID string       `json:"-"`
	Name       string       `json:"name"`
	Status     MemberStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

type Merchant struct {
	ID        int64     `json:"merchant_id"`
	Code      string    `json:"merchant_code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
