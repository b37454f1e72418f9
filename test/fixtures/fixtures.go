package fixtures

import (
	"github.com/nimasrn/card-ledger/internal/model"
)

var (
	Alice = model.Member{
		MemberNo:   "M-ALICE",
		AuthUserID: "u-alice",
		Name:       "Alice",
		Status:     model.MemberStatusActive,
	}

	Bob = model.Member{
		MemberNo:   "M-BOB",
		AuthUserID: "u-bob",
		Name:       "Bob",
		Status:     model.MemberStatusActive,
	}

	Suspended = model.Member{
		MemberNo:   "M-SUSPENDED",
		AuthUserID: "u-suspended",
		Name:       "Suspended",
		Status:     model.MemberStatusSuspended,
	}

	Shop = model.Merchant{
		Code:   "SHOP",
		Name:   "Corner Shop",
		Active: true,
	}

	ClosedShop = model.Merchant{
		Code:   "CLOSED",
		Name:   "Closed Shop",
		Active: false,
	}
)

const (
	CashierUserID = "u-cashier"
	OpsUserID     = "u-ops"
)
