package pg

import (
	"time"
)

// Model is embedded by every ledger entity. Rows are never hard-deleted,
// so there is no DeletedAt column.
type Model struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}
