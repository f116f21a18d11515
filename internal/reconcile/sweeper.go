package reconcile

import (
	"context"
	"log"
	"time"
)

const DefaultSweepInterval = time.Hour

// Sweeper periodically expires memberships whose end date has passed. The
// lifetime sentinel keeps this a single date comparison for every tier.
type Sweeper struct {
	auditor  *Auditor
	interval time.Duration
}

func NewSweeper(auditor *Auditor, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{auditor: auditor, interval: interval}
}

func (w *Sweeper) Start(ctx context.Context) {
	log.Printf("[Expiry Sweeper] Started, sweeping every %v", w.interval)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Expiry Sweeper] Stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	expired, err := w.auditor.SweepExpired(ctx)
	if err != nil {
		log.Printf("[Expiry Sweeper] Sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Expiry Sweeper] Expired %d memberships", expired)
	}
}
