package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TransactionTypeMembership = "MEMBERSHIP"
	TransactionTypeProduct    = "PRODUCT"
	TransactionTypeEvent      = "EVENT"
)

const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

// Transaction is one payment attempt. Created PENDING by checkout, moved to
// SUCCESS by the payment gateway's confirmation webhook, immutable afterwards.
type Transaction struct {
	ID            uuid.UUID   `gorm:"type:uuid;primary_key"`
	InvoiceNumber string      `gorm:"unique;not null"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index"`
	User          *User       `gorm:"foreignKey:UserID"`
	Type          string      `gorm:"not null;default:'MEMBERSHIP'"`
	Amount        int64       `gorm:"not null"`
	Status        string      `gorm:"not null;default:'PENDING';index"`
	MembershipID  *uuid.UUID  `gorm:"type:uuid"`
	Membership    *Membership `gorm:"foreignKey:MembershipID"`
	// AffiliateID attributes the sale to an internal affiliate profile;
	// LegacyAffiliateRef carries an id from the migrated system that still
	// needs a mapping lookup.
	AffiliateID        *uuid.UUID `gorm:"type:uuid;index"`
	LegacyAffiliateRef *string
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	return
}
