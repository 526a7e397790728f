package types

import (
	"context"
	"time"
)

type Account struct {
	ID                  string
	Email               string
	CreditBalance       int
	PlanKind            PlanKind
	UnlimitedExpiresAt  *time.Time
	PurchaseCount       int
	LastPurchaseAmount  int64
	LastPurchaseCredits int
	LastPurchaseAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Payment struct {
	Reference string
	Status    PaymentStatus
	PayerID   string
	Amount    int64
	Provider  string
	CreatedAt time.Time
}

// Message is the user-facing confirmation text attached to a grant result.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Grant is the outcome of processing one payment notification.
type Grant struct {
	Kind           GrantKind  `json:"kind"`
	Amount         int64      `json:"amount"`
	CreditsGranted int        `json:"credits_granted,omitempty"`
	DaysGranted    int        `json:"days_granted,omitempty"`
	NewBalance     int        `json:"new_balance,omitempty"`
	NewExpiry      *time.Time `json:"new_expiry,omitempty"`
	PurchaseCount  int        `json:"purchase_count,omitempty"`
	Message        Message    `json:"message"`
}

// BonusFunc maps the number of prior successful purchases to extra credits.
// It is evaluated by the store on the locked account row so the prior count
// can never be stale under concurrent grants.
type BonusFunc func(priorPurchases int) int

// GrantMutation is what a grant transaction committed to the account row.
type GrantMutation struct {
	CreditsGranted int
	NewBalance     int
	NewExpiry      time.Time
	PurchaseCount  int
}

// AccountStore is the persistence contract of the benefit ledger. The grant
// methods run a single transaction that mutates the account row and flips the
// payment marker to succeeded; either both commit or neither does.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)

	// BeginPayment is an atomic create-if-absent on the payment reference.
	// admitted=false means the reference was already handled (or is being
	// handled concurrently) and the caller must not touch the account.
	BeginPayment(ctx context.Context, p Payment) (admitted bool, err error)
	AbortPayment(ctx context.Context, reference string) error

	ApplyCreditGrant(ctx context.Context, accountID, reference string, amount int64, baseCredits int, bonus BonusFunc) (*GrantMutation, error)
	ApplyUnlimitedGrant(ctx context.Context, accountID, reference string, amount int64, days int) (*GrantMutation, error)
}

// SettledCache is a fast-path cache of payment references that already
// settled. Purely an optimization: the store's payment marker stays the
// authority, so cache misses and cache errors are both safe.
type SettledCache interface {
	Settled(ctx context.Context, reference string) (bool, error)
	MarkSettled(ctx context.Context, reference string) error
}
