package inventory

import (
	"context"
	"fmt"

	"github.com/wolfeidau/boxstock"
	"github.com/wolfeidau/boxstock/index"
	"github.com/wolfeidau/boxstock/telemetry"
)

// SupplyResult describes the effect of a Supply call.
type SupplyResult struct {
	Key      boxstock.Key
	Created  bool // the box type did not exist before
	Accepted int  // boxes added to stock
	Rejected int  // boxes returned because of MaxPerBoxType
	Count    int  // stock after the call
}

// Supply adds amount boxes of the given dimensions to stock.
//
// Invalid dimensions or a non-positive amount are reported and rejected
// without changing the inventory. Boxes beyond MaxPerBoxType are reported
// and returned to the caller in SupplyResult.Rejected; the rest are kept.
func (inv *Inventory) Supply(ctx context.Context, bottom, height float64, amount int) (SupplyResult, error) {
	key := boxstock.NewKey(bottom, height)
	if err := key.Validate(); err != nil {
		inv.notifier.OnError(fmt.Sprintf("Invalid box with bottomSize: %g and height: %g", bottom, height))
		telemetry.RecordSupply(ctx, telemetry.SupplyInvalid, 0, 0)
		return SupplyResult{}, err
	}
	if amount < 1 {
		inv.notifier.OnError(fmt.Sprintf("Invalid amount %d for box with bottomSize: %g and height: %g", amount, bottom, height))
		telemetry.RecordSupply(ctx, telemetry.SupplyInvalid, 0, 0)
		return SupplyResult{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	result := SupplyResult{Key: key}

	w, ok := inv.widths.Search(bottom)
	if !ok {
		w = newWidthEntry(bottom)
		inv.widths.Add(bottom, w)
	}

	h, ok := w.heights.Search(height)
	if !ok {
		h = &heightEntry{height: height}
		w.heights.Add(height, h)
		inv.queue.AddLast(inv.newRecord(key, inv.now()))
		result.Created = true
	} else if inv.config.TouchOnAccess {
		inv.touchLocked(key)
	}

	space := inv.config.MaxPerBoxType - h.count
	result.Accepted = min(amount, space)
	result.Rejected = amount - result.Accepted
	h.count += result.Accepted
	result.Count = h.count

	outcome := telemetry.SupplyOK
	if result.Rejected > 0 {
		outcome = telemetry.SupplyOverflow
		inv.notifier.OnError(fmt.Sprintf(
			"Box type with bottomSize: %g and height: %g has too many boxes (%d), returning %d Boxes",
			bottom, height, h.count+result.Rejected, result.Rejected,
		))
	}

	inv.logger.Debug("supplied boxes",
		"bottom", bottom,
		"height", height,
		"amount", amount,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"count", result.Count,
		"created", result.Created,
	)

	telemetry.RecordSupply(ctx, outcome, result.Accepted, result.Rejected)
	inv.recordStateLocked(ctx)

	return result, nil
}

// Query reports the stock of exactly the given box type. It never modifies
// the inventory.
func (inv *Inventory) Query(_ context.Context, bottom, height float64) (Stock, bool) {
	key := boxstock.NewKey(bottom, height)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	_, h, ok := inv.lookupLocked(key)
	if !ok {
		inv.notifier.OnMessage(fmt.Sprintf("Box with bottomSize: %g and height: %g not found", bottom, height))
		return Stock{}, false
	}

	rec, _ := inv.queue.Get(key)
	inv.notifier.OnMessage("Data about Box:")
	inv.notifier.OnMessage(fmt.Sprintf("bottomSize: %g", bottom))
	inv.notifier.OnMessage(fmt.Sprintf("height: %g", height))
	inv.notifier.OnMessage(fmt.Sprintf("Count: %d", h.count))

	return Stock{Key: key, Count: h.count, ExpiresAt: rec.ExpiresAt}, true
}

// Touch re-arms the expiration of a box type by moving its record to the
// end of the expiration queue. Box types not in stock are ignored so that
// the queue never holds a record without a matching index entry.
func (inv *Inventory) Touch(_ context.Context, bottom, height float64) bool {
	key := boxstock.NewKey(bottom, height)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, _, ok := inv.lookupLocked(key); !ok {
		inv.logger.Debug("touch ignored, box type not in stock", "bottom", bottom, "height", height)
		return false
	}
	inv.touchLocked(key)
	return true
}

func newWidthEntry(bottom float64) *widthEntry {
	return &widthEntry{
		bottom:  bottom,
		heights: index.New[float64, *heightEntry](),
	}
}
