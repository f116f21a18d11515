package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WalletTransactionCommission = "COMMISSION"
	WalletTransactionPayout     = "PAYOUT"
	WalletTransactionAdjustment = "ADJUSTMENT"
)

// Wallet is a running balance per user. The balance is derived state and must
// always equal the sum of this wallet's transaction amounts.
type Wallet struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID `gorm:"type:uuid;unique;not null"`
	User      *User     `gorm:"foreignKey:UserID"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (wallet *Wallet) BeforeCreate(tx *gorm.DB) (err error) {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	return
}

// WalletTransaction is an append-only ledger of balance deltas. COMMISSION
// entries carry the originating transaction id as reference, and the unique
// index on (type, reference) makes a replayed credit a no-op instead of a
// double-credit.
type WalletTransaction struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	WalletID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Wallet      *Wallet    `gorm:"foreignKey:WalletID"`
	Type        string     `gorm:"not null;uniqueIndex:idx_wallet_tx_ref"`
	Amount      int64      `gorm:"not null"`
	ReferenceID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_wallet_tx_ref"`
	Description string
	CreatedAt   time.Time
}

func (wt *WalletTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if wt.ID == uuid.Nil {
		wt.ID = uuid.New()
	}
	return
}
