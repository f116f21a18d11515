package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
)

// GetMyWallet returns the caller's commission wallet and its ledger entries.
// Users without earnings yet simply see a zero balance.
func GetMyWallet(c *gin.Context) {
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

	var wallet models.Wallet
	err := gormDB.Where("user_id = ?", userID.(uuid.UUID)).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"wallet":       gin.H{"balance": 0},
			"transactions": []models.WalletTransaction{},
		})
		return
	}
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to load wallet.")
		return
	}

	var transactions []models.WalletTransaction
	if err := gormDB.Where("wallet_id = ?", wallet.ID).
		Order("created_at DESC").
		Find(&transactions).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to load wallet transactions.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet": gin.H{
			"id":      wallet.ID,
			"balance": wallet.Balance,
		},
		"transactions": transactions,
	})
}
