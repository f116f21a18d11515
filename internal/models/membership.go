package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DurationFixed    = "FIXED"
	DurationLifetime = "LIFETIME"
)

const (
	CommissionFlat       = "FLAT"
	CommissionPercentage = "PERCENTAGE"
)

// Membership is a tier definition: price, duration policy, commission policy
// and the access it confers. Static reference data, admin-managed.
type Membership struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	Name           string    `gorm:"unique;not null"`
	Price          int64     `gorm:"not null"`
	DurationKind   string    `gorm:"not null;default:'FIXED'"`
	DurationMonths int       `gorm:"not null;default:1"`
	CommissionType string    `gorm:"not null;default:'PERCENTAGE'"`
	CommissionRate float64   `gorm:"not null;default:0"`
	Groups         []Group   `gorm:"many2many:membership_groups;"`
	Courses        []Course  `gorm:"many2many:membership_courses;"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (membership *Membership) BeforeCreate(tx *gorm.DB) (err error) {
	if membership.ID == uuid.Nil {
		membership.ID = uuid.New()
	}
	return
}

const (
	MembershipStatusPending   = "PENDING"
	MembershipStatusActive    = "ACTIVE"
	MembershipStatusExpired   = "EXPIRED"
	MembershipStatusCancelled = "CANCELLED"
)

// UserMembership is the materialized grant of a Membership to a user. The
// unique index on (user, membership) makes re-activation an update, never a
// second row.
type UserMembership struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_membership"`
	User          *User     `gorm:"foreignKey:UserID"`
	MembershipID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_membership"`
	Membership    *Membership
	Status        string    `gorm:"not null;default:'PENDING'"`
	IsActive      bool      `gorm:"not null;default:false"`
	StartsAt      time.Time `gorm:"not null"`
	EndsAt        time.Time `gorm:"not null;index"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (um *UserMembership) BeforeCreate(tx *gorm.DB) (err error) {
	if um.ID == uuid.Nil {
		um.ID = uuid.New()
	}
	return
}
