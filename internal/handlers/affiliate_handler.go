package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

func generateAffiliateCode() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return strings.ToUpper(hex.EncodeToString(buf))
}

// RegisterAffiliate creates the caller's affiliate profile. One profile per
// user; registering twice returns the existing profile.
func RegisterAffiliate(c *gin.Context) {
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

	var existing models.AffiliateProfile
	err := gormDB.Where("user_id = ?", userID.(uuid.UUID)).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{
			"message":        "Affiliate profile already exists.",
			"affiliate_code": existing.AffiliateCode,
		})
		return
	}

	profile := models.AffiliateProfile{
		ID:            uuid.New(),
		UserID:        userID.(uuid.UUID),
		AffiliateCode: generateAffiliateCode(),
	}

	if err := gormDB.Create(&profile).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create affiliate profile.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Affiliate profile created successfully.",
		"affiliate_code": profile.AffiliateCode,
	})
}

// GetMyAffiliate returns the caller's affiliate profile with its lifetime
// counters and conversion history.
func GetMyAffiliate(c *gin.Context) {
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

	var profile models.AffiliateProfile
	if err := gormDB.Where("user_id = ?", userID.(uuid.UUID)).First(&profile).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Affiliate profile not found.")
		return
	}

	var conversions []models.AffiliateConversion
	if err := gormDB.Where("affiliate_id = ?", profile.ID).
		Order("created_at DESC").
		Find(&conversions).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to load conversions.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"affiliate": gin.H{
			"affiliate_code":    profile.AffiliateCode,
			"total_earnings":    profile.TotalEarnings,
			"total_conversions": profile.TotalConversions,
			"total_clicks":      profile.TotalClicks,
		},
		"conversions": conversions,
	})
}

// TrackClick records a referral link visit. The counter is advisory, so a
// bad code is still answered with 200 to keep link crawlers quiet.
func TrackClick(c *gin.Context) {
	code := c.Param("code")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	gormDB.Model(&models.AffiliateProfile{}).
		Where("affiliate_code = ?", code).
		Update("total_clicks", gorm.Expr("total_clicks + 1"))

	c.JSON(http.StatusOK, gin.H{"message": "Click tracked."})
}
