package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credisol/paywebhook/internal/audit"
	"github.com/credisol/paywebhook/internal/catalog"
	"github.com/credisol/paywebhook/internal/courtesy"
	"github.com/credisol/paywebhook/store"
	"github.com/credisol/paywebhook/types"
)

type sinkSpy struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *sinkSpy) Emit(e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *sinkSpy) kinds() []audit.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

type cacheSpy struct {
	mu      sync.Mutex
	settled map[string]bool
}

func newCacheSpy() *cacheSpy { return &cacheSpy{settled: make(map[string]bool)} }

func (c *cacheSpy) Settled(_ context.Context, ref string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled[ref], nil
}

func (c *cacheSpy) MarkSettled(_ context.Context, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settled[ref] = true
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLedger(t *testing.T, mode courtesy.Mode, opts ...Option) (*Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore(15 * time.Minute)
	l := New(ms, catalog.MustDefault(), courtesy.NewPolicy(mode, 3), opts...)
	return l, ms
}

func TestCreditGrantFlatScenario(t *testing.T) {
	// amount=10 maps to 60 base credits; flat courtesy is 3.
	l, ms := newTestLedger(t, courtesy.ModeFlat)
	ms.SeedAccount(types.Account{ID: "u1", Email: "ana@example.com", CreditBalance: 5})

	g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "mp-1", Provider: "mercadopago"})
	require.NoError(t, err)

	assert.Equal(t, types.GrantCredits, g.Kind)
	assert.Equal(t, 63, g.CreditsGranted)
	assert.Equal(t, 68, g.NewBalance)
	assert.Equal(t, 1, g.PurchaseCount)
	assert.NotEmpty(t, g.Message.Body)

	a, err := ms.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 68, a.CreditBalance)
	assert.Equal(t, types.PlanCredits, a.PlanKind)
	assert.Equal(t, int64(10), a.LastPurchaseAmount)
	assert.Equal(t, 63, a.LastPurchaseCredits)

	p, ok := ms.Payment("mp-1")
	require.True(t, ok)
	assert.Equal(t, types.PaymentSucceeded, p.Status)
}

func TestUnlimitedGrantFreshPlan(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l, ms := newTestLedger(t, courtesy.ModeFlat, WithClock(fixedClock(now)))
	ms.Now = fixedClock(now)
	ms.SeedAccount(types.Account{ID: "u1", CreditBalance: 40})

	g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 60, Reference: "flow-1", Provider: "flow"})
	require.NoError(t, err)

	assert.Equal(t, types.GrantUnlimited, g.Kind)
	assert.Equal(t, 7, g.DaysGranted)
	require.NotNil(t, g.NewExpiry)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), *g.NewExpiry)

	a, _ := ms.GetAccount(context.Background(), "u1")
	assert.Equal(t, 40, a.CreditBalance, "credit balance must be untouched by unlimited grants")
	assert.Equal(t, types.PlanUnlimited, a.PlanKind)
}

func TestUnlimitedGrantExtendsActivePlan(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	l, ms := newTestLedger(t, courtesy.ModeFlat, WithClock(fixedClock(now)))
	ms.Now = fixedClock(now)
	ms.SeedAccount(types.Account{ID: "u1", PlanKind: types.PlanUnlimited, UnlimitedExpiresAt: &prior})

	g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 60, Reference: "flow-2", Provider: "flow"})
	require.NoError(t, err)

	// Extension from the prior expiry, not from now.
	assert.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), *g.NewExpiry)
}

func TestDuplicateReferenceGrantsOnce(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeFlat)
	ms.SeedAccount(types.Account{ID: "u1"})

	first, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 20, Reference: "mp-7", Provider: "mercadopago"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantCredits, first.Kind)
	assert.Equal(t, 128, first.NewBalance)

	second, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 20, Reference: "mp-7", Provider: "mercadopago"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantDuplicate, second.Kind)

	a, _ := ms.GetAccount(context.Background(), "u1")
	assert.Equal(t, 128, a.CreditBalance, "duplicate delivery must not change the balance")
	assert.Equal(t, 1, a.PurchaseCount)
}

func TestInvalidAmountLeavesNothingBehind(t *testing.T) {
	sink := &sinkSpy{}
	l, ms := newTestLedger(t, courtesy.ModeFlat, WithAuditSink(sink))
	ms.SeedAccount(types.Account{ID: "u1", CreditBalance: 5})

	_, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 999, Reference: "mp-9", Provider: "mercadopago"})
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	assert.Zero(t, ms.PaymentCount(), "rejected amounts must not leave payment records")
	a, _ := ms.GetAccount(context.Background(), "u1")
	assert.Equal(t, 5, a.CreditBalance)
	assert.Equal(t, []audit.EventKind{audit.KindRejected}, sink.kinds())
}

func TestUserNotFoundAbortsMarker(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeFlat)

	_, err := l.Grant(context.Background(), GrantRequest{Email: "ghost@example.com", Amount: 10, Reference: "mp-x", Provider: "mercadopago"})
	require.ErrorIs(t, err, types.ErrUserNotFound)

	_, ok := ms.Payment("mp-x")
	assert.False(t, ok, "marker must be rolled back, not left in processing")
}

func TestAmbiguousEmail(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeFlat)
	ms.SeedAccount(types.Account{ID: "u1", Email: "dup@example.com"})
	ms.SeedAccount(types.Account{ID: "u2", Email: "dup@example.com"})

	_, err := l.Grant(context.Background(), GrantRequest{Email: "dup@example.com", Amount: 10, Reference: "mp-a", Provider: "mercadopago"})
	require.ErrorIs(t, err, types.ErrAmbiguousEmail)
	assert.Zero(t, ms.PaymentCount())
}

func TestEmailLookupGrants(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeFlat)
	ms.SeedAccount(types.Account{ID: "u1", Email: "ana@example.com"})

	g, err := l.Grant(context.Background(), GrantRequest{Email: "ana@example.com", Amount: 10, Reference: "mp-b", Provider: "mercadopago"})
	require.NoError(t, err)
	assert.Equal(t, 63, g.CreditsGranted)
}

func TestMissingIdentifier(t *testing.T) {
	l, _ := newTestLedger(t, courtesy.ModeFlat)

	_, err := l.Grant(context.Background(), GrantRequest{Amount: 10, Reference: "mp-c"})
	require.ErrorIs(t, err, types.ErrMissingIdentifier)

	_, err = l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10})
	require.ErrorIs(t, err, types.ErrMissingIdentifier)
}

func TestProgressiveBonusReadsCommittedCount(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeProgressive)
	ms.SeedAccount(types.Account{ID: "u1"})

	// min(2+prior, 5): 62, 63, 64, 65, 65 on top of the 60 base.
	wantGranted := []int{62, 63, 64, 65, 65}
	for i, want := range wantGranted {
		g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: refN(i), Provider: "flow"})
		require.NoError(t, err)
		assert.Equal(t, want, g.CreditsGranted, "purchase %d", i)
		assert.Equal(t, i+1, g.PurchaseCount)
	}
}

func refN(i int) string {
	return string(rune('a'+i)) + "-ref"
}

func TestConcurrentSameReferenceAdmitsOne(t *testing.T) {
	l, ms := newTestLedger(t, courtesy.ModeFlat)
	ms.SeedAccount(types.Account{ID: "u1"})

	const attempts = 16
	results := make([]types.GrantKind, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "same-ref", Provider: "mercadopago"})
			if err == nil {
				results[i] = g.Kind
			}
		}(i)
	}
	wg.Wait()

	grants := 0
	for _, k := range results {
		if k == types.GrantCredits {
			grants++
		}
	}
	assert.Equal(t, 1, grants, "exactly one concurrent attempt may be admitted")

	a, _ := ms.GetAccount(context.Background(), "u1")
	assert.Equal(t, 63, a.CreditBalance)
	assert.Equal(t, 1, a.PurchaseCount)
}

func TestSettledCacheShortCircuits(t *testing.T) {
	cache := newCacheSpy()
	l, ms := newTestLedger(t, courtesy.ModeFlat, WithSettledCache(cache))
	ms.SeedAccount(types.Account{ID: "u1"})

	g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "mp-z", Provider: "mercadopago"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantCredits, g.Kind)
	assert.True(t, cache.settled["mp-z"])

	// Second delivery answered from the cache; the memory-store marker still
	// protects correctness underneath.
	dup, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "mp-z", Provider: "mercadopago"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantDuplicate, dup.Kind)
}

func TestStuckProcessingMarkerIsReaped(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	ms := store.NewMemoryStore(15 * time.Minute)
	ms.Now = func() time.Time { return current }
	l := New(ms, catalog.MustDefault(), courtesy.NewPolicy(courtesy.ModeFlat, 3), WithClock(func() time.Time { return current }))
	ms.SeedAccount(types.Account{ID: "u1"})

	// First attempt crashes between admit and commit: simulate by seeding the
	// marker directly and never settling it.
	admitted, err := ms.BeginPayment(context.Background(), types.Payment{Reference: "stuck-1", PayerID: "u1", Amount: 10})
	require.NoError(t, err)
	require.True(t, admitted)

	// Within the TTL the reference reads as duplicate.
	g, err := l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "stuck-1", Provider: "flow"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantDuplicate, g.Kind)

	// Past the TTL the retry takes the marker over and grants.
	current = base.Add(16 * time.Minute)
	g, err = l.Grant(context.Background(), GrantRequest{PayerID: "u1", Amount: 10, Reference: "stuck-1", Provider: "flow"})
	require.NoError(t, err)
	assert.Equal(t, types.GrantCredits, g.Kind)
}

func TestGrantErrorsAreWrapped(t *testing.T) {
	l, _ := newTestLedger(t, courtesy.ModeFlat)

	_, err := l.Grant(context.Background(), GrantRequest{PayerID: "nobody", Amount: 10, Reference: "mp-w"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUserNotFound))
}
