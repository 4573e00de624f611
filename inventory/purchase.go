package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/boxstock"
	"github.com/wolfeidau/boxstock/telemetry"
)

// Outcome describes why a purchase stopped.
type Outcome string

const (
	// OutcomeCompleted means the requested count was fully taken.
	OutcomeCompleted Outcome = "completed"
	// OutcomeDivideLimit means MaxDivides box types were consumed before the
	// requested count was reached.
	OutcomeDivideLimit Outcome = "divide_limit"
	// OutcomeNotFound means no remaining box type fits the request.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeDeclined means an offer was declined.
	OutcomeDeclined Outcome = "declined"
	// OutcomeEmpty means the inventory ran out of stock.
	OutcomeEmpty Outcome = "empty"
	// OutcomeCancelled means the confirmation was abandoned by the caller.
	OutcomeCancelled Outcome = "cancelled"
)

const notFoundMessage = "not found any more boxes"

// Fulfillment is one confirmed partial fulfillment of a purchase.
type Fulfillment struct {
	Key       boxstock.Key
	Count     int
	Exhausted bool // the box type was removed because it ran out
}

// PurchaseResult describes the effect of a Purchase call.
type PurchaseResult struct {
	ID        string
	Requested int
	Remaining int
	Fulfilled []Fulfillment
	Outcome   Outcome
}

// Taken returns the total number of boxes taken.
func (r PurchaseResult) Taken() int {
	return r.Requested - r.Remaining
}

// Purchase takes up to count boxes that best fit the requested dimensions.
//
// Each iteration offers the box type nearest to the request whose bottom
// size and height are both within [requested, requested*FitTolerance]. The
// notifier must confirm every offer; a decline ends the purchase without an
// error. At most MaxDivides box types are consumed. The returned error is
// non-nil only when the confirmation itself fails, e.g. ctx is cancelled.
func (inv *Inventory) Purchase(ctx context.Context, bottom, height float64, count int) (PurchaseResult, error) {
	result := PurchaseResult{
		ID:        uuid.NewString(),
		Requested: max(count, 0),
		Remaining: max(count, 0),
	}
	logger := inv.logger.With("purchase_id", result.ID)

	err := inv.purchase(ctx, bottom, height, &result)

	logger.Debug("purchase finished",
		"bottom", bottom,
		"height", height,
		"requested", result.Requested,
		"taken", result.Taken(),
		"divides", len(result.Fulfilled),
		"outcome", result.Outcome,
	)
	telemetry.RecordPurchase(ctx, string(result.Outcome), result.Taken(), len(result.Fulfilled))

	return result, err
}

func (inv *Inventory) purchase(ctx context.Context, bottom, height float64, result *PurchaseResult) error {
	for {
		if result.Remaining <= 0 {
			result.Outcome = OutcomeCompleted
			return nil
		}
		if len(result.Fulfilled) >= inv.config.MaxDivides {
			result.Outcome = OutcomeDivideLimit
			return nil
		}

		match, found, empty := inv.bestFit(bottom, height)
		if empty {
			result.Outcome = OutcomeEmpty
			return nil
		}
		if !found {
			inv.notifier.OnError(notFoundMessage)
			result.Outcome = OutcomeNotFound
			return nil
		}

		offer := min(result.Remaining, match.Count)
		ok, err := inv.notifier.OnQuestion(ctx, fmt.Sprintf("Do you want %d boxes of bottomSize %g, height = %g",
			offer, match.Key.Bottom, match.Key.Height))
		if err != nil {
			result.Outcome = OutcomeCancelled
			return fmt.Errorf("confirming purchase: %w", err)
		}
		if !ok {
			result.Outcome = OutcomeDeclined
			return nil
		}

		f, ok := inv.take(ctx, match.Key, offer)
		if !ok {
			// Swept while the question was pending.
			inv.notifier.OnError(notFoundMessage)
			result.Outcome = OutcomeNotFound
			return nil
		}
		if f.Exhausted {
			inv.notifier.OnMessage("It was the last box, so the box type was removed")
		}

		result.Fulfilled = append(result.Fulfilled, f)
		result.Remaining -= f.Count
	}
}

// bestFit finds the nearest box type within the fit tolerance. empty is true
// when there is no stock at all.
func (inv *Inventory) bestFit(bottom, height float64) (match Stock, found, empty bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if !inv.widths.HasRoot() {
		return Stock{}, false, true
	}

	matchedBottom, w, ok := inv.widths.SearchClosest(bottom)
	if !ok || !inv.fits(matchedBottom, bottom) {
		return Stock{}, false, false
	}

	matchedHeight, h, ok := w.heights.SearchClosest(height)
	if !ok || !inv.fits(matchedHeight, height) {
		return Stock{}, false, false
	}

	return Stock{Key: boxstock.NewKey(matchedBottom, matchedHeight), Count: h.count}, true, false
}

// fits reports whether matched is within [requested, requested*FitTolerance].
func (inv *Inventory) fits(matched, requested float64) bool {
	return matched >= requested && matched <= requested*inv.config.FitTolerance
}

// take removes up to n boxes of key from stock. The box type is removed from
// both the index and the expiration queue when its count reaches zero.
func (inv *Inventory) take(ctx context.Context, key boxstock.Key, n int) (Fulfillment, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	_, h, ok := inv.lookupLocked(key)
	if !ok {
		return Fulfillment{}, false
	}

	f := Fulfillment{Key: key, Count: min(n, h.count)}
	h.count -= f.Count

	if h.count == 0 {
		inv.removeLocked(key)
		f.Exhausted = true
		inv.logger.Debug("box type exhausted", "bottom", key.Bottom, "height", key.Height)
	} else if inv.config.TouchOnAccess {
		inv.touchLocked(key)
	}

	inv.recordStateLocked(ctx)
	return f, true
}
