// Package ledger is the benefit-granting engine: it deduplicates payment
// notifications, maps paid amounts to benefits and applies them to user
// accounts with a single atomic commit per payment.
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/credisol/paywebhook/internal/audit"
	"github.com/credisol/paywebhook/internal/catalog"
	"github.com/credisol/paywebhook/internal/courtesy"
	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/internal/messages"
	"github.com/credisol/paywebhook/types"
)

// AuditSink receives grant outcomes; delivery is best-effort.
type AuditSink interface {
	Emit(e audit.Event)
}

// GrantRequest is one validated payment notification. PayerID is preferred;
// Email is the fallback lookup and must match exactly one account.
type GrantRequest struct {
	PayerID   string
	Email     string
	Amount    int64
	Reference string
	Provider  string
	Lang      i18n.Lang
}

type Ledger struct {
	store   types.AccountStore
	seen    types.SettledCache
	catalog *catalog.Catalog
	bonus   courtesy.Policy
	sink    AuditSink
	now     func() time.Time
}

type Option func(*Ledger)

// WithSettledCache adds the fast-path duplicate cache.
func WithSettledCache(c types.SettledCache) Option {
	return func(l *Ledger) { l.seen = c }
}

// WithAuditSink adds the best-effort audit trail.
func WithAuditSink(s AuditSink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store types.AccountStore, cat *catalog.Catalog, bonus courtesy.Policy, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		catalog: cat,
		bonus:   bonus,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Grant processes one confirmed payment exactly once. Two-phase protocol:
// phase 1 admits or rejects the reference via the payment marker; phase 2
// mutates the account and settles the marker in one store transaction.
// Precondition failures between the phases abort the marker so a later
// redelivery of the reference is not permanently blocked.
func (l *Ledger) Grant(ctx context.Context, req GrantRequest) (*types.Grant, error) {
	req.PayerID = strings.TrimSpace(req.PayerID)
	req.Email = strings.TrimSpace(req.Email)
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return nil, fmt.Errorf("grant: %w", types.ErrMissingIdentifier)
	}
	if req.PayerID == "" && req.Email == "" {
		return nil, fmt.Errorf("grant: %w", types.ErrMissingIdentifier)
	}

	// Tier resolution is pure, so rejecting unknown amounts before touching
	// the store leaves no marker to clean up.
	tier, ok := l.catalog.Resolve(req.Amount)
	if !ok {
		l.emit(audit.KindRejected, req, "no pack for amount")
		return nil, fmt.Errorf("amount %d: %w", req.Amount, types.ErrInvalidAmount)
	}

	if dup, err := l.settledInCache(ctx, req.Reference); err == nil && dup {
		return l.duplicate(req), nil
	}

	admitted, err := l.store.BeginPayment(ctx, types.Payment{
		Reference: req.Reference,
		PayerID:   req.PayerID,
		Amount:    req.Amount,
		Provider:  req.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("begin payment %s: %w", req.Reference, err)
	}
	// Not admitted: the reference is settled or owned by a concurrent
	// attempt. The cache is not updated here because that attempt may still
	// abort, and an aborted reference must stay retryable.
	if !admitted {
		return l.duplicate(req), nil
	}

	account, err := l.resolveAccount(ctx, req)
	if err != nil {
		l.abort(ctx, req, err)
		return nil, err
	}

	grant, err := l.apply(ctx, account.ID, req, tier)
	if err != nil {
		l.abort(ctx, req, err)
		return nil, err
	}

	l.markSettled(ctx, req.Reference)
	l.emit(audit.KindGranted, req, fmt.Sprintf("kind=%s credits=%d days=%d", grant.Kind, grant.CreditsGranted, grant.DaysGranted))
	return grant, nil
}

func (l *Ledger) resolveAccount(ctx context.Context, req GrantRequest) (*types.Account, error) {
	if req.PayerID != "" {
		a, err := l.store.GetAccount(ctx, req.PayerID)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", req.PayerID, err)
		}
		return a, nil
	}
	a, err := l.store.FindAccountByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("account by email: %w", err)
	}
	return a, nil
}

func (l *Ledger) apply(ctx context.Context, accountID string, req GrantRequest, tier catalog.Tier) (*types.Grant, error) {
	now := l.now()
	switch tier.Kind {
	case catalog.KindCredits:
		m, err := l.store.ApplyCreditGrant(ctx, accountID, req.Reference, req.Amount, tier.BaseCredits, l.bonus.Bonus)
		if err != nil {
			return nil, fmt.Errorf("credit grant %s: %w", req.Reference, err)
		}
		g := &types.Grant{
			Kind:           types.GrantCredits,
			Amount:         req.Amount,
			CreditsGranted: m.CreditsGranted,
			NewBalance:     m.NewBalance,
			PurchaseCount:  m.PurchaseCount,
		}
		g.Message = messages.Compose(req.Lang, *g, now)
		return g, nil
	case catalog.KindUnlimited:
		m, err := l.store.ApplyUnlimitedGrant(ctx, accountID, req.Reference, req.Amount, tier.Days)
		if err != nil {
			return nil, fmt.Errorf("unlimited grant %s: %w", req.Reference, err)
		}
		expiry := m.NewExpiry
		g := &types.Grant{
			Kind:          types.GrantUnlimited,
			Amount:        req.Amount,
			DaysGranted:   tier.Days,
			NewExpiry:     &expiry,
			PurchaseCount: m.PurchaseCount,
		}
		g.Message = messages.Compose(req.Lang, *g, now)
		return g, nil
	default:
		return nil, fmt.Errorf("tier %d has unknown kind %q", tier.Amount, tier.Kind)
	}
}

func (l *Ledger) duplicate(req GrantRequest) *types.Grant {
	l.emit(audit.KindDuplicate, req, "")
	g := &types.Grant{Kind: types.GrantDuplicate, Amount: req.Amount}
	g.Message = messages.Compose(req.Lang, *g, l.now())
	return g
}

// abort deletes the processing marker after a phase-2 precondition failure.
// If the provider never resends the reference the payment stays unredeemed;
// the audit event keeps it visible to operators.
func (l *Ledger) abort(ctx context.Context, req GrantRequest, cause error) {
	l.emit(audit.KindRejected, req, cause.Error())
	if err := l.store.AbortPayment(ctx, req.Reference); err != nil {
		log.Printf("Ledger: abort marker %s failed: %v", req.Reference, err)
	}
}

func (l *Ledger) settledInCache(ctx context.Context, reference string) (bool, error) {
	if l.seen == nil {
		return false, nil
	}
	ok, err := l.seen.Settled(ctx, reference)
	if err != nil {
		log.Printf("Ledger: settled-cache read %s failed: %v", reference, err)
		return false, err
	}
	return ok, nil
}

func (l *Ledger) markSettled(ctx context.Context, reference string) {
	if l.seen == nil {
		return
	}
	if err := l.seen.MarkSettled(ctx, reference); err != nil {
		log.Printf("Ledger: settled-cache write %s failed: %v", reference, err)
	}
}

func (l *Ledger) emit(kind audit.EventKind, req GrantRequest, detail string) {
	if l.sink == nil {
		return
	}
	payer := req.PayerID
	if payer == "" {
		payer = req.Email
	}
	l.sink.Emit(audit.Event{
		Kind:      kind,
		Provider:  req.Provider,
		Reference: req.Reference,
		PayerID:   payer,
		Amount:    req.Amount,
		Detail:    detail,
		At:        l.now(),
	})
}
