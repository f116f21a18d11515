package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleMember  = "member"
	RolePremium = "premium"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
)

type Role struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"unique;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (role *Role) BeforeCreate(tx *gorm.DB) (err error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	return
}

// RoleRank orders roles by privilege. Activation only ever moves a user up
// this ladder, never down.
func RoleRank(name string) int {
	switch name {
	case RoleAdmin:
		return 3
	case RoleMentor:
		return 2
	case RolePremium:
		return 1
	default:
		return 0
	}
}
