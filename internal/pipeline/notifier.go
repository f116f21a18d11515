package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Notifier is the outbound notification collaborator. Calls are
// fire-and-forget: activation and ledger state never depend on delivery.
type Notifier interface {
	MembershipActivated(ctx context.Context, userID, membershipID uuid.UUID)
	CommissionEarned(ctx context.Context, affiliateID uuid.UUID, amount int64)
}

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) MembershipActivated(ctx context.Context, userID, membershipID uuid.UUID) {
	n.log.InfoContext(ctx, "membership activated",
		"user_id", userID.String(),
		"membership_id", membershipID.String(),
	)
}

func (n *LogNotifier) CommissionEarned(ctx context.Context, affiliateID uuid.UUID, amount int64) {
	n.log.InfoContext(ctx, "commission earned",
		"affiliate_id", affiliateID.String(),
		"amount", amount,
	)
}
