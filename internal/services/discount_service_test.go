package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLevelRepository struct {
	mock.Mock
}

func (m *MockLevelRepository) List(ctx context.Context) ([]model.MembershipLevel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MembershipLevel), args.Error(1)
}

func lvl(level int, min int64, max *int64, rate string) model.MembershipLevel {
	return model.MembershipLevel{Level: level, MinPoints: min, MaxPoints: max, Discount: dec(rate)}
}

func upTo(v int64) *int64 { return &v }

func TestDiscountService_LevelFor(t *testing.T) {
	repo := new(MockLevelRepository)
	repo.On("List", mock.Anything).Return([]model.MembershipLevel{
		lvl(2, 5000, nil, "0.90"),
		lvl(1, 1000, upTo(5000), "0.95"),
	}, nil)
	svc := NewDiscountService(repo)
	ctx := context.Background()

	tests := []struct {
		points int64
		want   int
		found  bool
	}{
		{points: 0, found: false},
		{points: 999, found: false},
		{points: 1000, want: 1, found: true},
		{points: 4999, want: 1, found: true},
		{points: 5000, want: 2, found: true},
		{points: 1 << 40, want: 2, found: true},
	}
	for _, tt := range tests {
		got, err := svc.LevelFor(ctx, tt.points)
		require.NoError(t, err)
		if !tt.found {
			assert.Nil(t, got, "points %d", tt.points)
			continue
		}
		require.NotNil(t, got, "points %d", tt.points)
		assert.Equal(t, tt.want, got.Level, "points %d", tt.points)
	}
	repo.AssertExpectations(t)
}

func TestDiscountService_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name   string
		levels []model.MembershipLevel
		want   error
	}{
		{
			name:   "overlap",
			levels: []model.MembershipLevel{lvl(0, 0, upTo(1000), "1"), lvl(1, 900, nil, "0.9")},
			want:   model.ErrAmbiguousLevelConfig,
		},
		{
			name:   "two open ended",
			levels: []model.MembershipLevel{lvl(0, 0, nil, "1"), lvl(1, 5000, nil, "0.9")},
			want:   model.ErrAmbiguousLevelConfig,
		},
		{
			name:   "empty bracket",
			levels: []model.MembershipLevel{lvl(0, 100, upTo(100), "1")},
			want:   model.ErrAmbiguousLevelConfig,
		},
		{
			name:   "rate above one",
			levels: []model.MembershipLevel{lvl(0, 0, nil, "1.1")},
			want:   model.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockLevelRepository)
			repo.On("List", mock.Anything).Return(tt.levels, nil)
			_, err := NewDiscountService(repo).LevelFor(context.Background(), 100)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDiscountService_ComputeDiscount(t *testing.T) {
	repo := new(MockLevelRepository)
	repo.On("List", mock.Anything).Return([]model.MembershipLevel{
		lvl(1, 1000, upTo(5000), "0.95"),
	}, nil)
	svc := NewDiscountService(repo)
	ctx := context.Background()

	fixed := dec("0.8")
	tests := []struct {
		name string
		card *model.Card
		want string
	}{
		{
			name: "personal in a level",
			card: &model.Card{Type: model.CardTypePersonal, Personal: &model.PersonalCard{Points: 1200}},
			want: "0.95",
		},
		{
			name: "personal below every level",
			card: &model.Card{Type: model.CardTypePersonal, Personal: &model.PersonalCard{Points: 10}},
			want: "1",
		},
		{
			name: "enterprise fixed",
			card: &model.Card{Type: model.CardTypeEnterprise, Enterprise: &model.EnterpriseCard{FixedDiscount: &fixed}},
			want: "0.8",
		},
		{
			name: "enterprise without discount ignores points",
			card: &model.Card{Type: model.CardTypeEnterprise, Enterprise: &model.EnterpriseCard{}},
			want: "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := svc.ComputeDiscount(ctx, tt.card)
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(rate), "got %s", rate)
		})
	}
}

func TestDiscountService_LevelRepositoryFailure(t *testing.T) {
	repo := new(MockLevelRepository)
	boom := errors.New("connection reset")
	repo.On("List", mock.Anything).Return(nil, boom)

	_, err := NewDiscountService(repo).ComputeDiscount(context.Background(), &model.Card{
		Type:     model.CardTypePersonal,
		Personal: &model.PersonalCard{Points: 1},
	})
	assert.ErrorIs(t, err, boom)
}

func TestFinalAmount(t *testing.T) {
	tests := []struct {
		raw, rate, want string
	}{
		{"100.00", "0.9", "90.00"},
		{"50.00", "0.9", "45.00"},
		{"33.33", "0.95", "31.66"},
		{"11.11", "0.9", "10.00"},
		{"0.01", "0.5", "0.01"},
		{"25.00", "1", "25.00"},
	}
	for _, tt := range tests {
		got := FinalAmount(decimal.RequireFromString(tt.raw), decimal.RequireFromString(tt.rate))
		assert.Equal(t, tt.want, got.StringFixed(2), "%s x %s", tt.raw, tt.rate)
	}
}
