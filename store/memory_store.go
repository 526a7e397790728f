package store

import (
	"context"
	"sync"
	"time"

	"github.com/credisol/paywebhook/types"
)

// MemoryStore is an in-memory AccountStore used by tests and local runs
// without Postgres. The single mutex gives the same per-reference admit-once
// and per-account serialization guarantees as the SQL store.
type MemoryStore struct {
	mu            sync.Mutex
	accounts      map[string]*types.Account
	payments      map[string]*types.Payment
	processingTTL time.Duration
	Now           func() time.Time
}

func NewMemoryStore(processingTTL time.Duration) *MemoryStore {
	if processingTTL <= 0 {
		processingTTL = 15 * time.Minute
	}
	return &MemoryStore{
		accounts:      make(map[string]*types.Account),
		payments:      make(map[string]*types.Payment),
		processingTTL: processingTTL,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) SeedAccount(a types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.ID] = &cp
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) FindAccountByEmail(_ context.Context, email string) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *types.Account
	for _, a := range s.accounts {
		if a.Email != email {
			continue
		}
		if found != nil {
			return nil, types.ErrAmbiguousEmail
		}
		found = a
	}
	if found == nil {
		return nil, types.ErrUserNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *MemoryStore) BeginPayment(_ context.Context, p types.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	if existing, ok := s.payments[p.Reference]; ok {
		stuck := existing.Status == types.PaymentProcessing && now.Sub(existing.CreatedAt) > s.processingTTL
		if !stuck {
			return false, nil
		}
	}
	p.Status = types.PaymentProcessing
	p.CreatedAt = now
	cp := p
	s.payments[p.Reference] = &cp
	return true, nil
}

func (s *MemoryStore) AbortPayment(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[reference]; ok && p.Status == types.PaymentProcessing {
		delete(s.payments, reference)
	}
	return nil
}

func (s *MemoryStore) ApplyCreditGrant(_ context.Context, accountID, reference string, amount int64, baseCredits int, bonus types.BonusFunc) (*types.GrantMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	p, ok := s.payments[reference]
	if !ok || p.Status != types.PaymentProcessing {
		return nil, ErrPaymentTakenOver
	}

	now := s.Now()
	granted := baseCredits + bonus(a.PurchaseCount)
	a.CreditBalance += granted
	a.PlanKind = types.PlanCredits
	a.PurchaseCount++
	a.LastPurchaseAmount = amount
	a.LastPurchaseCredits = granted
	a.LastPurchaseAt = &now
	a.UpdatedAt = now
	p.Status = types.PaymentSucceeded

	return &types.GrantMutation{CreditsGranted: granted, NewBalance: a.CreditBalance, PurchaseCount: a.PurchaseCount}, nil
}

func (s *MemoryStore) ApplyUnlimitedGrant(_ context.Context, accountID, reference string, amount int64, days int) (*types.GrantMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	p, ok := s.payments[reference]
	if !ok || p.Status != types.PaymentProcessing {
		return nil, ErrPaymentTakenOver
	}

	now := s.Now()
	base := now
	if a.UnlimitedExpiresAt != nil && a.UnlimitedExpiresAt.After(base) {
		base = *a.UnlimitedExpiresAt
	}
	newExpires := base.Add(time.Duration(days) * 24 * time.Hour)

	a.PlanKind = types.PlanUnlimited
	a.UnlimitedExpiresAt = &newExpires
	a.PurchaseCount++
	a.LastPurchaseAmount = amount
	a.LastPurchaseCredits = 0
	a.LastPurchaseAt = &now
	a.UpdatedAt = now
	p.Status = types.PaymentSucceeded

	return &types.GrantMutation{NewExpiry: newExpires, PurchaseCount: a.PurchaseCount}, nil
}

// Payment exposes the stored payment record for test assertions.
func (s *MemoryStore) Payment(reference string) (types.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return types.Payment{}, false
	}
	return *p, true
}

// PaymentCount reports how many payment records exist.
func (s *MemoryStore) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}
