package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

// ListMyMemberships returns the caller's membership rows plus the group and
// course access currently derived from them.
func ListMyMemberships(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var userMemberships []models.UserMembership
	if err := gormDB.Preload("Membership").
		Where("user_id = ?", userID.(uuid.UUID)).
		Order("created_at DESC").
		Find(&userMemberships).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to list memberships.")
		return
	}

	now := time.Now()
	memberships := make([]gin.H, 0, len(userMemberships))
	for _, userMembership := range userMemberships {
		active := userMembership.Status == models.MembershipStatusActive && userMembership.EndsAt.After(now)
		item := gin.H{
			"id":        userMembership.ID,
			"status":    userMembership.Status,
			"active":    active,
			"starts_at": userMembership.StartsAt,
			"ends_at":   userMembership.EndsAt,
		}
		if userMembership.Membership != nil {
			item["membership"] = gin.H{
				"id":   userMembership.Membership.ID,
				"name": userMembership.Membership.Name,
			}
		}
		memberships = append(memberships, item)
	}

	var groups []models.Group
	gormDB.Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID.(uuid.UUID)).
		Find(&groups)

	var courses []models.Course
	gormDB.Joins("JOIN course_enrollments ON course_enrollments.course_id = courses.id").
		Where("course_enrollments.user_id = ?", userID.(uuid.UUID)).
		Find(&courses)

	c.JSON(http.StatusOK, gin.H{
		"memberships": memberships,
		"groups":      groups,
		"courses":     courses,
	})
}
