package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/repository"
)

type PaymentWebhookRequest struct {
	InvoiceNumber string `json:"invoice_number" binding:"required"`
	Status        string `json:"status" binding:"required"`
	PaidAt        string `json:"paid_at"`
}

// PaymentWebhook settles a transaction reported by the payment gateway and
// fans out to activation and commission bookkeeping. The two engines run
// independently: a failure in one never blocks the other, and both are
// idempotent so the gateway may retry the callback freely.
func PaymentWebhook(c *gin.Context) {
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var transaction models.Transaction
	if err := gormDB.Where("invoice_number = ?", req.InvoiceNumber).First(&transaction).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
		return
	}

	if req.Status != "PAID" && req.Status != "SUCCESS" {
		if transaction.Status == models.TransactionStatusPending {
			gormDB.Model(&transaction).Update("status", models.TransactionStatusFailed)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Transaction marked as failed."})
		return
	}

	if transaction.Status == models.TransactionStatusPending {
		paidAt := time.Now()
		if req.PaidAt != "" {
			if parsed, err := time.Parse(time.RFC3339, req.PaidAt); err == nil {
				paidAt = parsed
			}
		}
		updates := map[string]interface{}{
			"status":  models.TransactionStatusSuccess,
			"paid_at": paidAt,
		}
		if err := gormDB.Model(&transaction).Updates(updates).Error; err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update transaction.")
			return
		}
		transaction.Status = models.TransactionStatusSuccess
		transaction.PaidAt = &paidAt
	}

	log := slog.Default()
	store := repository.New(gormDB)
	notifier := pipeline.NewLogNotifier(log)
	activator := pipeline.NewActivator(store, notifier, log)
	ledger := pipeline.NewLedger(store, notifier, log)

	activated := false
	if result, err := activator.Activate(c.Request.Context(), &transaction); err != nil {
		if !errors.Is(err, pipeline.ErrNotMembershipTransaction) {
			log.Error("membership activation failed", "invoice", transaction.InvoiceNumber, "error", err)
		}
	} else {
		activated = result.Created || result.Renewed || result.AlreadyApplied
	}

	commissionRecorded := false
	if result, err := ledger.RecordCommission(c.Request.Context(), &transaction); err != nil {
		if !errors.Is(err, pipeline.ErrNoAttribution) {
			log.Error("commission recording failed", "invoice", transaction.InvoiceNumber, "error", err)
		}
	} else {
		commissionRecorded = result != nil
	}

	// Bookkeeping failures are picked up by the reconciliation auditor, so
	// the gateway always gets a success response once the payment is settled.
	c.JSON(http.StatusOK, gin.H{
		"message":             "Payment processed successfully.",
		"activated":           activated,
		"commission_recorded": commissionRecorded,
	})
}
