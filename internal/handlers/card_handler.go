package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

func generateCardData(userMembership *models.UserMembership) string {
	secretKey := os.Getenv("JWT_SECRET")
	signature := generateCardSignature(userMembership.ID, userMembership.MembershipID, userMembership.UserID, secretKey)
	return fmt.Sprintf("membership:%s;tier:%s;user:%s;signature:%s",
		userMembership.ID.String(),
		userMembership.MembershipID.String(),
		userMembership.UserID.String(),
		signature,
	)
}

func generateCardSignature(membershipID, tierID, userID uuid.UUID, secretKey string) string {
	data := fmt.Sprintf("%s:%s:%s", membershipID.String(), tierID.String(), userID.String())
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func extractMembershipIDFromCardData(cardData string) (uuid.UUID, error) {
	parts := strings.Split(cardData, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "membership:") || !strings.HasPrefix(parts[3], "signature:") {
		return uuid.Nil, fmt.Errorf("invalid card data format")
	}
	return uuid.Parse(strings.TrimPrefix(parts[0], "membership:"))
}

func validateCardSignature(userMembership *models.UserMembership, cardData string) bool {
	parts := strings.Split(cardData, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[3], "signature:") {
		return false
	}

	secretKey := os.Getenv("JWT_SECRET")
	signature := strings.TrimPrefix(parts[3], "signature:")
	expectedSignature := generateCardSignature(userMembership.ID, userMembership.MembershipID, userMembership.UserID, secretKey)
	return hmac.Equal([]byte(expectedSignature), []byte(signature))
}

// GenerateMemberCard renders the caller's active membership as a signed QR
// card for offline check-in at community events.
func GenerateMemberCard(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	membershipIDStr := c.Param("id")
	membershipID, err := uuid.Parse(membershipIDStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid membership ID")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found")
		return
	}
	gormDB := db.(*gorm.DB)

	var userMembership models.UserMembership
	if err := gormDB.Preload("Membership").First(&userMembership, membershipID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Membership not found")
		return
	}

	if userMembership.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to generate a card for this membership")
		return
	}

	if userMembership.Status != models.MembershipStatusActive || !userMembership.EndsAt.After(time.Now()) {
		helpers.RespondWithError(c, http.StatusForbidden, "Membership is not active")
		return
	}

	cardData := generateCardData(&userMembership)

	qrImage, err := qrcode.Encode(cardData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

// VerifyMemberCard checks a scanned card's signature and whether the
// underlying membership is still active. Mentor and admin only.
func VerifyMemberCard(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found")
		return
	}
	gormDB := db.(*gorm.DB)

	var verificationRequest struct {
		CardData string `json:"card_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&verificationRequest); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	membershipID, err := extractMembershipIDFromCardData(verificationRequest.CardData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid card format")
		return
	}

	var userMembership models.UserMembership
	if err := gormDB.Preload("Membership").Preload("User").First(&userMembership, membershipID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Membership not found")
		return
	}

	if !validateCardSignature(&userMembership, verificationRequest.CardData) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid card signature")
		return
	}

	active := userMembership.Status == models.MembershipStatusActive && userMembership.EndsAt.After(time.Now())

	response := gin.H{
		"message": "Card verified successfully",
		"card": gin.H{
			"active":  active,
			"status":  userMembership.Status,
			"ends_at": userMembership.EndsAt,
		},
	}
	if userMembership.Membership != nil {
		response["card"].(gin.H)["tier"] = userMembership.Membership.Name
	}
	if userMembership.User != nil {
		response["card"].(gin.H)["member"] = userMembership.User.Name
	}

	c.JSON(http.StatusOK, response)
}
