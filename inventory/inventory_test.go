package inventory

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/boxstock"
)

// recordingNotifier captures notifications and answers questions with answer.
type recordingNotifier struct {
	mu        sync.Mutex
	messages  []string
	errors    []string
	questions []string
	answer    func(ctx context.Context, question string) (bool, error)
}

func (n *recordingNotifier) OnMessage(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) OnError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) OnQuestion(ctx context.Context, question string) (bool, error) {
	n.mu.Lock()
	n.questions = append(n.questions, question)
	answer := n.answer
	n.mu.Unlock()
	if answer == nil {
		return true, nil
	}
	return answer(ctx, question)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages, n.errors, n.questions = nil, nil, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestInventory(t *testing.T, opts ...func(*Config)) (*Inventory, *recordingNotifier, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	cfg.TTL = time.Hour
	for _, opt := range opts {
		opt(&cfg)
	}
	n := &recordingNotifier{}
	inv, err := New(cfg, n)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, inv.Verify(), "inventory must stay coherent")
	})
	return inv, n, clock
}

func mustSupply(t *testing.T, inv *Inventory, bottom, height float64, amount int) {
	t.Helper()
	_, err := inv.Supply(context.Background(), bottom, height, amount)
	require.NoError(t, err)
}

func TestNew_RequiresNotifier(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestNew_FillsDefaults(t *testing.T) {
	inv, err := New(Config{}, &recordingNotifier{})
	require.NoError(t, err)

	cfg := inv.Config()
	require.Equal(t, 50, cfg.MaxPerBoxType)
	require.Equal(t, 3, cfg.MaxDivides)
	require.InDelta(t, 1.5, cfg.FitTolerance, 1e-9)
	require.Equal(t, 24*time.Hour, cfg.TTL)
	require.NotNil(t, cfg.Logger)
	require.NotNil(t, cfg.Now)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative max per box type", cfg: Config{MaxPerBoxType: -1}},
		{name: "negative divides", cfg: Config{MaxDivides: -3}},
		{name: "tolerance below one", cfg: Config{FitTolerance: 0.5}},
		{name: "negative ttl", cfg: Config{TTL: -time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, &recordingNotifier{})
			require.Error(t, err)
		})
	}
}

func TestSupply_CapacityClamp(t *testing.T) {
	inv, n, _ := newTestInventory(t)

	result, err := inv.Supply(context.Background(), 5, 5, 60)
	require.NoError(t, err)

	require.True(t, result.Created)
	require.Equal(t, 50, result.Accepted)
	require.Equal(t, 10, result.Rejected)
	require.Equal(t, 50, result.Count)

	require.Len(t, n.errors, 1)
	assert.Contains(t, n.errors[0], "returning 10 Boxes")

	stock, ok := inv.Query(context.Background(), 5, 5)
	require.True(t, ok)
	require.Equal(t, 50, stock.Count)
}

func TestSupply_ClampOnTopOfExistingStock(t *testing.T) {
	inv, n, _ := newTestInventory(t)

	mustSupply(t, inv, 5, 5, 45)
	result, err := inv.Supply(context.Background(), 5, 5, 10)
	require.NoError(t, err)

	require.False(t, result.Created)
	require.Equal(t, 5, result.Accepted)
	require.Equal(t, 5, result.Rejected)
	require.Equal(t, 50, result.Count)
	require.Len(t, n.errors, 1)
	assert.Contains(t, n.errors[0], "(55)")
}

func TestSupply_Validation(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	ctx := context.Background()

	_, err := inv.Supply(ctx, 31, 5, 1)
	require.ErrorIs(t, err, boxstock.ErrInvalidDimensions)

	_, err = inv.Supply(ctx, 5, 0, 1)
	require.ErrorIs(t, err, boxstock.ErrInvalidDimensions)

	_, err = inv.Supply(ctx, 5, 5, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = inv.Supply(ctx, 5, 5, -4)
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Len(t, n.errors, 4)
	assert.Equal(t, "Invalid box with bottomSize: 31 and height: 5", n.errors[0])
	require.Equal(t, Stats{}, inv.Stats())
}

func TestSupply_OneRecordPerPair(t *testing.T) {
	inv, _, _ := newTestInventory(t)

	mustSupply(t, inv, 10, 10, 1)
	mustSupply(t, inv, 10, 20, 1)
	mustSupply(t, inv, 10, 10, 1)
	mustSupply(t, inv, 12, 10, 1)

	stats := inv.Stats()
	require.Equal(t, 3, stats.BoxTypes)
	require.Equal(t, 2, stats.BottomSizes)
	require.Equal(t, 4, stats.Units)
	require.Equal(t, 3, stats.Queued)
	require.Equal(t, []boxstock.Key{
		boxstock.NewKey(10, 10),
		boxstock.NewKey(10, 20),
		boxstock.NewKey(12, 10),
	}, inv.queue.Keys())
}

func TestQuery(t *testing.T) {
	inv, n, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 10, 10, 3)

	stock, ok := inv.Query(ctx, 10, 10)
	require.True(t, ok)
	require.Equal(t, 3, stock.Count)
	require.True(t, stock.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
	require.Equal(t, []string{"Data about Box:", "bottomSize: 10", "height: 10", "Count: 3"}, n.messages)

	n.reset()
	_, ok = inv.Query(ctx, 10, 11)
	require.False(t, ok)
	require.Equal(t, []string{"Box with bottomSize: 10 and height: 11 not found"}, n.messages)

	n.reset()
	_, ok = inv.Query(ctx, 11, 10)
	require.False(t, ok)
	require.Len(t, n.messages, 1)
}

func TestPurchase_BestFitBounds(t *testing.T) {
	tests := []struct {
		name          string
		stock         boxstock.Key
		bottom        float64
		height        float64
		wantFulfilled bool
	}{
		{name: "upper bound exceeded", stock: boxstock.NewKey(20, 20), bottom: 10, height: 10},
		{name: "within tolerance", stock: boxstock.NewKey(20, 20), bottom: 15, height: 15, wantFulfilled: true},
		{name: "exactly at upper bound", stock: boxstock.NewKey(15, 15), bottom: 10, height: 10, wantFulfilled: true},
		{name: "smaller than requested", stock: boxstock.NewKey(9, 9), bottom: 10, height: 10},
		{name: "height too small", stock: boxstock.NewKey(10, 9), bottom: 10, height: 10},
		{name: "height too large", stock: boxstock.NewKey(10, 16), bottom: 10, height: 10},
		{name: "exact match", stock: boxstock.NewKey(10, 10), bottom: 10, height: 10, wantFulfilled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, n, _ := newTestInventory(t)
			mustSupply(t, inv, tt.stock.Bottom, tt.stock.Height, 5)

			result, err := inv.Purchase(context.Background(), tt.bottom, tt.height, 1)
			require.NoError(t, err)

			if !tt.wantFulfilled {
				require.Equal(t, OutcomeNotFound, result.Outcome)
				require.Equal(t, []string{"not found any more boxes"}, n.errors)
				require.Empty(t, n.questions)
				require.Equal(t, 5, inv.Stats().Units)
				return
			}

			require.Equal(t, OutcomeCompleted, result.Outcome)
			require.Len(t, result.Fulfilled, 1)
			require.Equal(t, tt.stock, result.Fulfilled[0].Key)
			require.Equal(t, 4, inv.Stats().Units)
			require.Empty(t, n.errors)
		})
	}
}

func TestPurchase_QuestionText(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	mustSupply(t, inv, 12, 7.5, 4)

	_, err := inv.Purchase(context.Background(), 10, 7, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Do you want 4 boxes of bottomSize 12, height = 7.5"}, n.questions)
}

func TestPurchase_ExhaustionRemovesEntries(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 10, 10, 2)
	mustSupply(t, inv, 10, 12, 1)

	result, err := inv.Purchase(ctx, 10, 10, 2)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Equal(t, []Fulfillment{{Key: boxstock.NewKey(10, 10), Count: 2, Exhausted: true}}, result.Fulfilled)
	require.Equal(t, []string{"It was the last box, so the box type was removed"}, n.messages)

	require.False(t, inv.queue.Contains(boxstock.NewKey(10, 10)))
	require.Equal(t, Stats{BoxTypes: 1, BottomSizes: 1, Units: 1, Queued: 1}, inv.Stats())
	require.NoError(t, inv.Verify())

	_, err = inv.Purchase(ctx, 10, 12, 1)
	require.NoError(t, err)
	require.Equal(t, Stats{}, inv.Stats())
	require.False(t, inv.widths.HasRoot())
}

func TestPurchase_DivideLimit(t *testing.T) {
	inv, n, _ := newTestInventory(t)

	for _, h := range []float64{10, 11, 12, 13} {
		mustSupply(t, inv, 10, h, 1)
	}

	result, err := inv.Purchase(context.Background(), 10, 10, 10)
	require.NoError(t, err)

	require.Equal(t, OutcomeDivideLimit, result.Outcome)
	require.Len(t, result.Fulfilled, 3)
	require.Equal(t, 3, result.Taken())
	require.Equal(t, 7, result.Remaining)
	require.Empty(t, n.errors, "the unfulfilled remainder is not reported")

	stock, ok := inv.Query(context.Background(), 10, 13)
	require.True(t, ok)
	require.Equal(t, 1, stock.Count)
}

func TestPurchase_SpansBoxTypes(t *testing.T) {
	inv, _, _ := newTestInventory(t)

	mustSupply(t, inv, 10, 10, 3)
	mustSupply(t, inv, 10, 11, 5)

	result, err := inv.Purchase(context.Background(), 10, 10, 6)
	require.NoError(t, err)

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Equal(t, []Fulfillment{
		{Key: boxstock.NewKey(10, 10), Count: 3, Exhausted: true},
		{Key: boxstock.NewKey(10, 11), Count: 3},
	}, result.Fulfilled)
	require.Equal(t, 2, inv.Stats().Units)
}

func TestPurchase_Declined(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	n.answer = func(context.Context, string) (bool, error) { return false, nil }

	mustSupply(t, inv, 10, 10, 3)

	result, err := inv.Purchase(context.Background(), 10, 10, 2)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeclined, result.Outcome)
	require.Empty(t, result.Fulfilled)
	require.Empty(t, n.errors)
	require.Equal(t, 3, inv.Stats().Units)
}

func TestPurchase_Cancelled(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	n.answer = func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}

	mustSupply(t, inv, 10, 10, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := inv.Purchase(ctx, 10, 10, 2)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, OutcomeCancelled, result.Outcome)
	require.Equal(t, 3, inv.Stats().Units)
}

func TestPurchase_EmptyInventoryIsSilent(t *testing.T) {
	inv, n, _ := newTestInventory(t)

	result, err := inv.Purchase(context.Background(), 10, 10, 2)
	require.NoError(t, err)
	require.Equal(t, OutcomeEmpty, result.Outcome)
	require.Empty(t, n.errors)
	require.Empty(t, n.questions)
}

func TestPurchase_NonPositiveCount(t *testing.T) {
	inv, n, _ := newTestInventory(t)
	mustSupply(t, inv, 10, 10, 3)

	result, err := inv.Purchase(context.Background(), 10, 10, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Empty(t, n.questions)
	require.Equal(t, 3, inv.Stats().Units)
}

func TestPurchase_SweptWhileConfirming(t *testing.T) {
	inv, n, clock := newTestInventory(t)
	mustSupply(t, inv, 10, 10, 3)

	n.answer = func(ctx context.Context, _ string) (bool, error) {
		clock.Advance(2 * time.Hour)
		inv.Sweep(ctx)
		return true, nil
	}

	result, err := inv.Purchase(context.Background(), 10, 10, 2)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotFound, result.Outcome)
	require.Equal(t, []string{"not found any more boxes"}, n.errors)
	require.Equal(t, Stats{}, inv.Stats())
}

func TestSweep_EvictsExpired(t *testing.T) {
	inv, n, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 1)
	mustSupply(t, inv, 1, 2, 1)
	clock.Advance(30 * time.Minute)
	mustSupply(t, inv, 2, 2, 1)

	clock.Advance(45 * time.Minute)
	n.reset()

	result := inv.Sweep(ctx)
	require.Equal(t, 2, result.Evicted)
	require.Equal(t, 1, result.Remaining)
	require.NotEmpty(t, result.RunID)
	require.Empty(t, n.messages, "sweep is silent")
	require.Empty(t, n.errors, "sweep is silent")

	require.Equal(t, []boxstock.Key{boxstock.NewKey(2, 2)}, inv.queue.Keys())
	_, ok := inv.widths.Search(1)
	require.False(t, ok, "bottom size with no heights left is removed")
}

func TestSweep_Idempotent(t *testing.T) {
	inv, _, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 1)
	mustSupply(t, inv, 3, 3, 1)
	clock.Advance(2 * time.Hour)

	first := inv.Sweep(ctx)
	require.Equal(t, 2, first.Evicted)

	second := inv.Sweep(ctx)
	require.Zero(t, second.Evicted)
	require.Zero(t, second.Remaining)
}

func TestSweep_NotExpiredAtExactDeadline(t *testing.T) {
	inv, _, clock := newTestInventory(t)

	mustSupply(t, inv, 1, 1, 1)
	clock.Advance(time.Hour)

	require.Zero(t, inv.Sweep(context.Background()).Evicted)
}

func TestReportDueSoon(t *testing.T) {
	inv, n, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 4)
	clock.Advance(30 * time.Minute)
	mustSupply(t, inv, 2, 2, 6)
	clock.Advance(45 * time.Minute)
	n.reset()

	due := inv.ReportDueSoon(ctx)
	require.Len(t, due, 1)
	require.Equal(t, boxstock.NewKey(1, 1), due[0].Key)
	require.Equal(t, 4, due[0].Count)

	require.Len(t, n.messages, 1)
	assert.True(t, strings.HasPrefix(n.messages[0], "expires at: 2024-01-01 13:00:00"))
	assert.Contains(t, n.messages[0], "bottom size: 1, height: 1, count: 4")

	require.Equal(t, 2, inv.Stats().BoxTypes, "report does not evict")
}

func TestTouchOnAccess(t *testing.T) {
	inv, _, clock := newTestInventory(t, func(c *Config) { c.TouchOnAccess = true })
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 5)
	mustSupply(t, inv, 2, 2, 5)
	clock.Advance(50 * time.Minute)

	mustSupply(t, inv, 1, 1, 1)
	require.Equal(t, []boxstock.Key{boxstock.NewKey(2, 2), boxstock.NewKey(1, 1)}, inv.queue.Keys())

	clock.Advance(20 * time.Minute)
	result := inv.Sweep(ctx)
	require.Equal(t, 1, result.Evicted)

	_, ok := inv.Query(ctx, 1, 1)
	require.True(t, ok, "supply re-armed the expiration")
}

func TestTouchOnAccess_Purchase(t *testing.T) {
	inv, _, clock := newTestInventory(t, func(c *Config) { c.TouchOnAccess = true })
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 5)
	mustSupply(t, inv, 2, 2, 5)
	clock.Advance(50 * time.Minute)

	_, err := inv.Purchase(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []boxstock.Key{boxstock.NewKey(2, 2), boxstock.NewKey(1, 1)}, inv.queue.Keys())
}

func TestWithoutTouchOnAccess_SupplyKeepsCreationTime(t *testing.T) {
	inv, _, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 5)
	clock.Advance(50 * time.Minute)
	mustSupply(t, inv, 1, 1, 1)
	clock.Advance(20 * time.Minute)

	require.Equal(t, 1, inv.Sweep(ctx).Evicted)
}

func TestTouch(t *testing.T) {
	inv, _, clock := newTestInventory(t)
	ctx := context.Background()

	mustSupply(t, inv, 1, 1, 1)
	mustSupply(t, inv, 2, 2, 1)
	clock.Advance(10 * time.Minute)

	require.True(t, inv.Touch(ctx, 1, 1))
	require.Equal(t, []boxstock.Key{boxstock.NewKey(2, 2), boxstock.NewKey(1, 1)}, inv.queue.Keys())

	rec, ok := inv.queue.Get(boxstock.NewKey(1, 1))
	require.True(t, ok)
	require.True(t, rec.ExpiresAt.Equal(clock.Now().Add(time.Hour)))

	require.False(t, inv.Touch(ctx, 9, 9), "unknown box types are not queued")
	require.Equal(t, 2, inv.queue.Len())
}

func TestList(t *testing.T) {
	inv, _, _ := newTestInventory(t)

	mustSupply(t, inv, 12, 3, 1)
	mustSupply(t, inv, 4, 9, 2)
	mustSupply(t, inv, 4, 2, 3)

	var keys []boxstock.Key
	for _, s := range inv.List() {
		keys = append(keys, s.Key)
	}
	require.Equal(t, []boxstock.Key{
		boxstock.NewKey(4, 2),
		boxstock.NewKey(4, 9),
		boxstock.NewKey(12, 3),
	}, keys)
}

func TestVerify_DetectsMissingRecord(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	mustSupply(t, inv, 1, 1, 1)

	inv.queue.Remove(boxstock.NewKey(1, 1))
	require.ErrorIs(t, inv.Verify(), ErrIncoherent)

	// Restore so the cleanup check passes.
	inv.queue.AddLast(inv.newRecord(boxstock.NewKey(1, 1), inv.now()))
}

func TestVerify_DetectsOrphanRecord(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	mustSupply(t, inv, 1, 1, 1)

	inv.queue.AddLast(inv.newRecord(boxstock.NewKey(7, 7), inv.now()))
	require.ErrorIs(t, inv.Verify(), ErrIncoherent)

	inv.queue.Remove(boxstock.NewKey(7, 7))
}

// TestCoherence_RandomOperations interleaves supplies, purchases, sweeps and
// touches and checks the index and queue agree after every step.
func TestCoherence_RandomOperations(t *testing.T) {
	for _, touch := range []bool{false, true} {
		inv, n, clock := newTestInventory(t, func(c *Config) {
			c.TouchOnAccess = touch
			c.MaxPerBoxType = 10
		})
		rng := rand.New(rand.NewPCG(42, 7))
		n.answer = func(context.Context, string) (bool, error) {
			return rng.IntN(4) != 0, nil
		}
		ctx := context.Background()
		dim := func() float64 { return float64(1 + rng.IntN(8)) }

		for i := 0; i < 2000; i++ {
			switch rng.IntN(5) {
			case 0, 1:
				_, _ = inv.Supply(ctx, dim(), dim(), 1+rng.IntN(12))
			case 2:
				_, err := inv.Purchase(ctx, dim(), dim(), 1+rng.IntN(15))
				require.NoError(t, err)
			case 3:
				clock.Advance(time.Duration(rng.IntN(20)) * time.Minute)
				inv.Sweep(ctx)
			case 4:
				inv.Touch(ctx, dim(), dim())
			}
			require.NoError(t, inv.Verify(), "step %d", i)
		}
	}
}
