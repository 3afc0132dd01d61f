package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one append-only observability record emitted by the ledger,
// the token or the bank.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Pool       string    `gorm:"size:16;index"`
	Account    string    `gorm:"size:42;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TVLSnapshot captures both pool totals at a point in time. Amounts are
// decimal strings since they exceed 64 bits.
type TVLSnapshot struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Base    string    `gorm:"size:80;not null"`
	Reward  string    `gorm:"size:80;not null"`
	TakenAt time.Time `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Record{},
		&TVLSnapshot{},
	)
}
