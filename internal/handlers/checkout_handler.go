package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

type CheckoutRequest struct {
	MembershipID  uuid.UUID `json:"membership_id" binding:"required"`
	AffiliateCode string    `json:"affiliate_code"`
}

// CreateCheckout opens a PENDING membership transaction. The payment gateway
// settles it later through the webhook; attribution is resolved now so the
// affiliate code does not need to survive the gateway round-trip.
func CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

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

	var membership models.Membership
	if err := gormDB.First(&membership, req.MembershipID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Membership tier not found.")
		return
	}

	var affiliateID *uuid.UUID
	if req.AffiliateCode != "" {
		var profile models.AffiliateProfile
		err := gormDB.Where("affiliate_code = ?", req.AffiliateCode).First(&profile).Error
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Affiliate code not recognized.")
			return
		}
		// Self referrals earn nothing.
		if profile.UserID != userID.(uuid.UUID) {
			affiliateID = &profile.ID
		}
	}

	now := time.Now()
	transaction := models.Transaction{
		ID:            uuid.New(),
		InvoiceNumber: fmt.Sprintf("INV-%d", now.UnixNano()),
		UserID:        userID.(uuid.UUID),
		Type:          models.TransactionTypeMembership,
		Amount:        membership.Price,
		Status:        models.TransactionStatusPending,
		MembershipID:  &membership.ID,
		AffiliateID:   affiliateID,
	}

	if err := gormDB.Create(&transaction).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create checkout.")
		return
	}

	externalID := fmt.Sprintf("MBR-%d-%s", now.Unix(), helpers.EncryptCheckoutRef(membership.ID, affiliateID))

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Checkout created successfully.",
		"transaction_id": transaction.ID,
		"invoice_number": transaction.InvoiceNumber,
		"external_id":    externalID,
		"amount":         transaction.Amount,
	})
}
