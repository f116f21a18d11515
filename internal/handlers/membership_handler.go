package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

type MembershipRequest struct {
	Name           string      `json:"name" binding:"required"`
	Price          int64       `json:"price" binding:"required,min=0"`
	DurationKind   string      `json:"duration_kind" binding:"required,oneof=FIXED LIFETIME"`
	DurationMonths int         `json:"duration_months"`
	CommissionType string      `json:"commission_type" binding:"required,oneof=FLAT PERCENTAGE"`
	CommissionRate float64     `json:"commission_rate"`
	GroupIDs       []uuid.UUID `json:"group_ids"`
	CourseIDs      []uuid.UUID `json:"course_ids"`
}

func CreateMembership(c *gin.Context) {
	var req MembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.DurationKind == models.DurationFixed && req.DurationMonths < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Fixed duration requires duration_months of at least 1.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var groups []models.Group
	if len(req.GroupIDs) > 0 {
		if err := gormDB.Where("id IN ?", req.GroupIDs).Find(&groups).Error; err != nil || len(groups) != len(req.GroupIDs) {
			helpers.RespondWithError(c, http.StatusBadRequest, "One or more groups not found.")
			return
		}
	}
	var courses []models.Course
	if len(req.CourseIDs) > 0 {
		if err := gormDB.Where("id IN ?", req.CourseIDs).Find(&courses).Error; err != nil || len(courses) != len(req.CourseIDs) {
			helpers.RespondWithError(c, http.StatusBadRequest, "One or more courses not found.")
			return
		}
	}

	membership := models.Membership{
		ID:             uuid.New(),
		Name:           req.Name,
		Price:          req.Price,
		DurationKind:   req.DurationKind,
		DurationMonths: req.DurationMonths,
		CommissionType: req.CommissionType,
		CommissionRate: req.CommissionRate,
		Groups:         groups,
		Courses:        courses,
	}

	if err := gormDB.Create(&membership).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create membership tier.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Membership tier created successfully.",
		"membership_id": membership.ID,
	})
}

func ListMemberships(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var memberships []models.Membership
	if err := gormDB.Preload("Groups").Preload("Courses").Find(&memberships).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to list membership tiers.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"memberships": memberships})
}

func GetMembership(c *gin.Context) {
	membershipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid membership ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var membership models.Membership
	if err := gormDB.Preload("Groups").Preload("Courses").First(&membership, membershipID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Membership tier not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"membership": membership})
}
