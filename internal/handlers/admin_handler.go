package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/internal/helpers"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/reconcile"
	"github.com/pradiptya/memberkit/internal/repository"
)

// RunReconciliation audits the full data set against the settled
// transactions. Dry-run by default; ?mode=repair lets the auditor heal
// what is safe to heal.
func RunReconciliation(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	mode := reconcile.DryRun
	if c.Query("mode") == "repair" {
		mode = reconcile.Repair
	}

	log := slog.Default()
	store := repository.New(gormDB)
	notifier := pipeline.NewLogNotifier(log)
	activator := pipeline.NewActivator(store, notifier, log)
	ledger := pipeline.NewLedger(store, notifier, log)
	auditor := reconcile.NewAuditor(store, activator, ledger, log)

	report, err := auditor.Run(c.Request.Context(), mode)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation run failed.")
		return
	}

	modeName := "dry_run"
	if mode == reconcile.Repair {
		modeName = "repair"
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":       modeName,
		"unrepaired": report.Unrepaired(),
		"report":     report,
	})
}
