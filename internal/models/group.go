package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Group struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	Name        string    `gorm:"unique;not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (group *Group) BeforeCreate(tx *gorm.DB) (err error) {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	return
}

// GroupMember is derived access, cascaded from an activated membership.
// Unique on (user, group) so a repeated cascade is a no-op.
type GroupMember struct {
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_member"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_member"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GroupMember) TableName() string {
	return "group_members"
}
