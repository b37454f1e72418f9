package services

import (
	"context"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CardRepository interface {
	Create(ctx context.Context, card *model.Card) (*model.Card, error)
	GetCard(ctx context.Context, id int64) (*model.Card, error)
	GetCardForUpdate(ctx context.Context, id int64) (*model.Card, error)
	GetCardByNo(ctx context.Context, cardNo string) (*model.Card, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Card, error)
	ListOwnedBy(ctx context.Context, memberID int64) ([]*model.Card, error)
	ApplyBalanceDelta(ctx context.Context, cardID int64, delta decimal.Decimal, expectedVersion int64) (*model.Card, error)
	UpdateStatus(ctx context.Context, cardID int64, status model.CardStatus) (*model.Card, error)
	SetPoints(ctx context.Context, cardID int64, points int64, level int) (*model.Card, error)
}

type TransactionRepository interface {
	Append(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Transition(ctx context.Context, id int64, from, to model.TxStatus, failure model.ErrorKind) error
	GetByTxNo(ctx context.Context, txNo string) (*model.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, txType model.TxType, key string) (*model.Transaction, error)
	SumCompletedRefunds(ctx context.Context, originalID int64) (decimal.Decimal, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type QrTokenRepository interface {
	Rotate(ctx context.Context, token *model.QrToken) (*model.QrToken, error)
	RevokeActive(ctx context.Context, cardID int64) (int64, error)
	GetByDigest(ctx context.Context, digest string) (*model.QrToken, error)
	Consume(ctx context.Context, id int64, at time.Time) error
	MarkExpired(ctx context.Context, now time.Time, limit int) (int64, error)
	History(ctx context.Context, cardID int64, limit int) ([]*model.QrToken, error)
}

type MembershipLevelRepository interface {
	List(ctx context.Context) ([]model.MembershipLevel, error)
}

type CardBindingRepository interface {
	Create(ctx context.Context, b *model.CardBinding) (*model.CardBinding, error)
	Get(ctx context.Context, cardID, memberID int64) (*model.CardBinding, error)
	ListByCard(ctx context.Context, cardID int64) ([]*model.CardBinding, error)
	ListByMember(ctx context.Context, memberID int64) ([]*model.CardBinding, error)
	CountAdmins(ctx context.Context, cardID int64) (int64, error)
	UpdateRole(ctx context.Context, cardID, memberID int64, role model.BindingRole) error
	Delete(ctx context.Context, cardID, memberID int64) error
}

type MemberRepository interface {
	GetByMemberNo(ctx context.Context, memberNo string) (*model.Member, error)
}

// Gate is the access decision point every operation consults.
type Gate interface {
	MemberOf(ctx context.Context, caller model.Caller) (*model.Member, error)
	ResolveMerchant(ctx context.Context, caller model.Caller, code string) (*model.Merchant, error)
	AuthorizeCardHolder(ctx context.Context, caller model.Caller, card *model.Card) error
	AuthorizeCardOwner(ctx context.Context, caller model.Caller, card *model.Card) error
	AuthorizeEnterpriseAdmin(ctx context.Context, caller model.Caller, card *model.Card) (*model.CardBinding, error)
	VerifyCardPassword(card *model.Card, password string) error
	AuthorizePlatformAdmin(ctx context.Context, caller model.Caller) error
	CanViewMerchant(ctx context.Context, caller model.Caller, merchantID int64) (bool, error)
}

// Clock lets tests pin the current time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
