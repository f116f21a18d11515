package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/pradiptya/memberkit/config"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/reconcile"
	"github.com/pradiptya/memberkit/internal/repository"
)

func main() {
	repair := flag.Bool("repair", false, "heal repairable findings instead of only reporting them")
	sweepExpired := flag.Bool("sweep-expired", false, "also expire memberships whose end date has passed")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	logger := slog.Default()
	store := repository.New(db)
	notifier := pipeline.NewLogNotifier(logger)
	activator := pipeline.NewActivator(store, notifier, logger)
	ledger := pipeline.NewLedger(store, notifier, logger)
	auditor := reconcile.NewAuditor(store, activator, ledger, logger)

	ctx := context.Background()

	if *sweepExpired {
		expired, err := auditor.SweepExpired(ctx)
		if err != nil {
			log.Fatalf("Expiry sweep failed: %v", err)
		}
		fmt.Printf("Expired %d memberships\n", expired)
	}

	mode := reconcile.DryRun
	if *repair {
		mode = reconcile.Repair
	}

	report, err := auditor.Run(ctx, mode)
	if err != nil {
		log.Fatalf("Reconciliation run failed: %v", err)
	}

	fmt.Printf("Checked %d transactions, %d affiliates, %d users\n",
		report.TransactionsChecked, report.AffiliatesChecked, report.UsersChecked)

	for _, finding := range report.Findings {
		status := "REPORTED"
		if finding.Repaired {
			status = "REPAIRED"
		}
		fmt.Printf("[%s] %s entity=%s expected=%s actual=%s\n",
			status, finding.Kind, finding.EntityID, finding.Expected, finding.Actual)
	}

	unrepaired := report.Unrepaired()
	fmt.Printf("%d findings, %d unrepaired\n", len(report.Findings), unrepaired)
	if unrepaired > 0 {
		os.Exit(1)
	}
}
