package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
)

// Store is the read-then-repair surface the auditor scans over. It extends
// the pipeline store with full-set listing and the derived-state rewrites
// used in repair mode.
type Store interface {
	pipeline.Store

	ListSuccessTransactions(ctx context.Context) ([]models.Transaction, error)
	ListUserMemberships(ctx context.Context) ([]models.UserMembership, error)
	ListConversions(ctx context.Context) ([]models.AffiliateConversion, error)
	ListAffiliates(ctx context.Context) ([]models.AffiliateProfile, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	WalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// WalletTransactionSum folds the append-only ledger for one wallet.
	WalletTransactionSum(ctx context.Context, walletID uuid.UUID) (int64, error)

	CancelUserMembership(ctx context.Context, id uuid.UUID) error
	// ExpireDueMemberships marks ACTIVE rows whose end date has passed as
	// EXPIRED and returns how many rows changed.
	ExpireDueMemberships(ctx context.Context, now time.Time) (int64, error)
}
