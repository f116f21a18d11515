package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	Title       string    `gorm:"unique;not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (course *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	return
}

// CourseEnrollment is derived access, cascaded from an activated membership.
// Unique on (user, course) so a repeated cascade is a no-op.
type CourseEnrollment struct {
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_enrollment"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_enrollment"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}
