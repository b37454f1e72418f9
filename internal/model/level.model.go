package model

import "github.com/shopspring/decimal"

// MembershipLevel covers the half open point range [MinPoints, MaxPoints).
// A nil MaxPoints is unbounded.
type MembershipLevel struct {
	Level     int             `json:"level"`
	Name      string          `json:"name"`
	MinPoints int64           `json:"min_points"`
	MaxPoints *int64          `json:"max_points"`
	Discount  decimal.Decimal `json:"discount"`
}

func (l MembershipLevel) Contains(points int64) bool {
	if points < l.MinPoints {
		return false
	}
	return l.MaxPoints == nil || points < *l.MaxPoints
}

// Overlaps reports whether two brackets share at least one point value.
func (l MembershipLevel) Overlaps(o MembershipLevel) bool {
	lo := l.MinPoints
	if o.MinPoints > lo {
		lo = o.MinPoints
	}
	if l.MaxPoints != nil && lo >= *l.MaxPoints {
		return false
	}
	if o.MaxPoints != nil && lo >= *o.MaxPoints {
		return false
	}
	return true
}
