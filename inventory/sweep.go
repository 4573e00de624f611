package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/boxstock/expiry"
	"github.com/wolfeidau/boxstock/telemetry"
)

// Sweep evicts every expired box type from the index and the expiration
// queue. It does not notify; it implements expiry.Sweeper.
func (inv *Inventory) Sweep(ctx context.Context) *expiry.Result {
	start := time.Now()

	inv.mu.Lock()
	defer inv.mu.Unlock()

	now := inv.now()
	result := &expiry.Result{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}

	for {
		rec, ok := inv.queue.Front()
		if !ok || !rec.Expired(now) {
			break
		}
		inv.queue.RemoveFirst()
		inv.removeFromIndexLocked(rec.Key)
		result.Evicted++

		inv.logger.Debug("evicted expired box type",
			"run_id", result.RunID,
			"bottom", rec.Key.Bottom,
			"height", rec.Key.Height,
			"expires_at", rec.ExpiresAt,
		)
	}

	result.Remaining = inv.queue.Len()
	result.Duration = time.Since(start)

	telemetry.RecordSweep(ctx, result.Evicted, result.Duration)
	if result.Evicted > 0 {
		inv.recordStateLocked(ctx)
	}

	return result
}

// ReportDueSoon reports every expired box type that has not yet been swept,
// oldest first. It never modifies the inventory.
func (inv *Inventory) ReportDueSoon(_ context.Context) []Stock {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	now := inv.now()
	var due []Stock
	inv.queue.Each(func(rec expiry.Record) bool {
		if !rec.Expired(now) {
			return false
		}
		_, h, ok := inv.lookupLocked(rec.Key)
		if !ok {
			return true
		}
		inv.notifier.OnMessage(fmt.Sprintf("expires at: %s, bottom size: %g, height: %g, count: %d",
			rec.ExpiresAt.Format(time.DateTime), rec.Key.Bottom, rec.Key.Height, h.count))
		due = append(due, Stock{Key: rec.Key, Count: h.count, ExpiresAt: rec.ExpiresAt})
		return true
	})
	return due
}
