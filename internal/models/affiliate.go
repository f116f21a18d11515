package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliateProfile is one per affiliate-capable user. The aggregate counters
// are derived state: always a fold over this affiliate's conversion rows,
// never incremented in place.
type AffiliateProfile struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID           uuid.UUID `gorm:"type:uuid;unique;not null"`
	User             *User     `gorm:"foreignKey:UserID"`
	AffiliateCode    string    `gorm:"unique;not null"`
	LegacyRef        *string   `gorm:"uniqueIndex"`
	TotalEarnings    int64     `gorm:"not null;default:0"`
	TotalConversions int64     `gorm:"not null;default:0"`
	TotalClicks      int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (profile *AffiliateProfile) BeforeCreate(tx *gorm.DB) (err error) {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return
}

// AffiliateConversion is the commission ledger entry. Unique on transaction
// id: a transaction has at most one attributed affiliate, so a replayed
// webhook can never produce a second entry.
type AffiliateConversion struct {
	ID               uuid.UUID         `gorm:"type:uuid;primary_key"`
	AffiliateID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	Affiliate        *AffiliateProfile `gorm:"foreignKey:AffiliateID"`
	TransactionID    uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null"`
	Transaction      *Transaction      `gorm:"foreignKey:TransactionID"`
	CommissionAmount int64             `gorm:"not null"`
	CommissionRate   float64           `gorm:"not null"`
	PaidOut          bool              `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (conversion *AffiliateConversion) BeforeCreate(tx *gorm.DB) (err error) {
	if conversion.ID == uuid.Nil {
		conversion.ID = uuid.New()
	}
	return
}
