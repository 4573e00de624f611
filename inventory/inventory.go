// Package inventory maintains box stock in a two level ordered index kept in
// lockstep with an expiration queue.
//
// Every box type (bottom size, height) present in the index has exactly one
// record in the expiration queue and vice versa. All mutations of the index
// and the queue happen together under a single mutex.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wolfeidau/boxstock"
	"github.com/wolfeidau/boxstock/expiry"
	"github.com/wolfeidau/boxstock/index"
	"github.com/wolfeidau/boxstock/telemetry"
)

var (
	// ErrInvalidAmount is returned when a supply amount is not positive.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrIncoherent is returned by Verify when the index and the expiration
	// queue disagree. It always indicates a bug.
	ErrIncoherent = errors.New("inventory index and expiration queue are incoherent")
)

// widthEntry is the outer index value. It never holds an empty height index.
type widthEntry struct {
	bottom  float64
	heights *index.Tree[float64, *heightEntry]
}

// heightEntry is the inner index value. count is always in [1, MaxPerBoxType].
type heightEntry struct {
	height float64
	count  int
}

// Stock describes the current stock of one box type.
type Stock struct {
	Key       boxstock.Key
	Count     int
	ExpiresAt time.Time
}

// Stats contains aggregate inventory statistics.
type Stats struct {
	BoxTypes    int
	BottomSizes int
	Units       int
	Queued      int
}

// Inventory tracks box stock and its expiration.
type Inventory struct {
	config   Config
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	widths *index.Tree[float64, *widthEntry]
	queue  *expiry.Queue
}

// New creates an empty inventory reporting to n.
func New(cfg Config, n Notifier) (*Inventory, error) {
	if n == nil {
		return nil, errors.New("inventory: notifier is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Inventory{
		config:   cfg,
		notifier: n,
		logger:   cfg.Logger,
		now:      cfg.Now,
		widths:   index.New[float64, *widthEntry](),
		queue:    expiry.NewQueue(),
	}, nil
}

// Config returns the effective configuration.
func (inv *Inventory) Config() Config {
	return inv.config
}

// Stats returns aggregate statistics.
func (inv *Inventory) Stats() Stats {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.statsLocked()
}

// List returns all box types ordered by bottom size then height.
func (inv *Inventory) List() []Stock {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	var stock []Stock
	inv.widths.Ascend(func(bottom float64, w *widthEntry) bool {
		w.heights.Ascend(func(height float64, h *heightEntry) bool {
			key := boxstock.NewKey(bottom, height)
			rec, _ := inv.queue.Get(key)
			stock = append(stock, Stock{Key: key, Count: h.count, ExpiresAt: rec.ExpiresAt})
			return true
		})
		return true
	})
	return stock
}

// Verify checks that the index and the expiration queue hold the same box
// types and that every entry respects the count bounds.
func (inv *Inventory) Verify() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	pairs := 0
	var verr error
	inv.widths.Ascend(func(bottom float64, w *widthEntry) bool {
		if !w.heights.HasRoot() {
			verr = fmt.Errorf("%w: bottom size %g has no heights", ErrIncoherent, bottom)
			return false
		}
		w.heights.Ascend(func(height float64, h *heightEntry) bool {
			key := boxstock.NewKey(bottom, height)
			pairs++
			switch {
			case h.count < 1 || h.count > inv.config.MaxPerBoxType:
				verr = fmt.Errorf("%w: %s has count %d", ErrIncoherent, key, h.count)
			case !inv.queue.Contains(key):
				verr = fmt.Errorf("%w: %s missing from expiration queue", ErrIncoherent, key)
			}
			return verr == nil
		})
		return verr == nil
	})
	if verr != nil {
		return verr
	}

	if n := inv.queue.Len(); n != pairs {
		return fmt.Errorf("%w: index holds %d box types, queue holds %d records", ErrIncoherent, pairs, n)
	}

	var prev time.Time
	inv.queue.Each(func(rec expiry.Record) bool {
		if rec.ExpiresAt.Before(prev) {
			verr = fmt.Errorf("%w: %s expires before its predecessor", ErrIncoherent, rec.Key)
			return false
		}
		prev = rec.ExpiresAt
		return true
	})
	return verr
}

func (inv *Inventory) lookupLocked(key boxstock.Key) (*widthEntry, *heightEntry, bool) {
	w, ok := inv.widths.Search(key.Bottom)
	if !ok {
		return nil, nil, false
	}
	h, ok := w.heights.Search(key.Height)
	if !ok {
		return w, nil, false
	}
	return w, h, true
}

// removeLocked removes key from the index and its record from the queue.
func (inv *Inventory) removeLocked(key boxstock.Key) bool {
	removed := inv.removeFromIndexLocked(key)
	inv.queue.Remove(key)
	return removed
}

// removeFromIndexLocked removes the height entry for key and the owning
// width entry when it becomes empty. The queue is left untouched.
func (inv *Inventory) removeFromIndexLocked(key boxstock.Key) bool {
	w, ok := inv.widths.Search(key.Bottom)
	if !ok {
		return false
	}
	removed := w.heights.Remove(key.Height)
	if !w.heights.HasRoot() {
		inv.widths.Remove(key.Bottom)
	}
	return removed
}

func (inv *Inventory) newRecord(key boxstock.Key, now time.Time) expiry.Record {
	return expiry.Record{
		Key:       key,
		TouchedAt: now,
		ExpiresAt: now.Add(inv.config.TTL),
	}
}

// touchLocked moves the record for key to the end of the queue, or appends
// one if it is missing.
func (inv *Inventory) touchLocked(key boxstock.Key) {
	now := inv.now()
	if !inv.queue.MoveToEnd(key, now, now.Add(inv.config.TTL)) {
		inv.queue.AddLast(inv.newRecord(key, now))
	}
}

func (inv *Inventory) statsLocked() Stats {
	stats := Stats{
		BottomSizes: inv.widths.Len(),
		Queued:      inv.queue.Len(),
	}
	inv.widths.Ascend(func(_ float64, w *widthEntry) bool {
		stats.BoxTypes += w.heights.Len()
		w.heights.Ascend(func(_ float64, h *heightEntry) bool {
			stats.Units += h.count
			return true
		})
		return true
	})
	return stats
}

func (inv *Inventory) recordStateLocked(ctx context.Context) {
	if !telemetry.Enabled() {
		return
	}
	stats := inv.statsLocked()
	telemetry.UpdateStockState(ctx, stats.BoxTypes, stats.Units, stats.Queued)
}
