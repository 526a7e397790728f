package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/credisol/paywebhook/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// ErrPaymentTakenOver means the processing marker for a reference was reaped
// by another attempt while the grant transaction ran. The transaction rolls
// back; the competing attempt owns the payment now.
var ErrPaymentTakenOver = errors.New("payment marker no longer held")

const grantRetries = 3

type PostgresStore struct {
	pool          *pgxpool.Pool
	processingTTL time.Duration
	now           func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string, processingTTL time.Duration) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if processingTTL <= 0 {
		processingTTL = 15 * time.Minute
	}
	s := &PostgresStore{pool: pool, processingTTL: processingTTL, now: func() time.Time { return time.Now().UTC() }}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "paywebhook"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "paywebhook"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

const accountColumns = `id, email, credit_balance, plan_kind, unlimited_expires_at, purchase_count,
last_purchase_amount, last_purchase_credits, last_purchase_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	err := row.Scan(&a.ID, &a.Email, &a.CreditBalance, &a.PlanKind, &a.UnlimitedExpiresAt, &a.PurchaseCount,
		&a.LastPurchaseAmount, &a.LastPurchaseCredits, &a.LastPurchaseAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	a, err := scanAccount(s.pool.QueryRow(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = $1
`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrUserNotFound
	}
	return a, err
}

// FindAccountByEmail is the fallback lookup when a notification carries only
// an email. Emails are not unique by schema, so anything but exactly one
// match is an error.
func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE email = $1
LIMIT 2
`, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*types.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, types.ErrUserNotFound
	case 1:
		return found[0], nil
	default:
		return nil, types.ErrAmbiguousEmail
	}
}

// BeginPayment inserts the processing marker, or takes over a marker that
// has been stuck in processing longer than the TTL. Both paths are a single
// statement, so among N concurrent attempts exactly one is admitted.
func (s *PostgresStore) BeginPayment(ctx context.Context, p types.Payment) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO payments (reference, status, payer_id, amount, provider)
VALUES ($1, 'processing', $2, $3, $4)
ON CONFLICT (reference) DO UPDATE SET
  status = 'processing',
  payer_id = EXCLUDED.payer_id,
  amount = EXCLUDED.amount,
  provider = EXCLUDED.provider,
  created_at = NOW()
WHERE payments.status = 'processing'
  AND payments.created_at < NOW() - make_interval(secs => $5)
`, strings.TrimSpace(p.Reference), strings.TrimSpace(p.PayerID), p.Amount, strings.TrimSpace(p.Provider), s.processingTTL.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) AbortPayment(ctx context.Context, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
DELETE FROM payments
WHERE reference = $1 AND status = 'processing'
`, strings.TrimSpace(reference))
	return err
}

func (s *PostgresStore) ApplyCreditGrant(ctx context.Context, accountID, reference string, amount int64, baseCredits int, bonus types.BonusFunc) (*types.GrantMutation, error) {
	var out *types.GrantMutation
	err := s.withGrantTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var balance, purchases int
		err := tx.QueryRow(ctx, `
SELECT credit_balance, purchase_count
FROM accounts
WHERE id = $1
FOR UPDATE
`, accountID).Scan(&balance, &purchases)
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		granted := baseCredits + bonus(purchases)
		newBalance := balance + granted
		_, err = tx.Exec(ctx, `
UPDATE accounts SET
  credit_balance = $2,
  plan_kind = 'credits',
  purchase_count = purchase_count + 1,
  last_purchase_amount = $3,
  last_purchase_credits = $4,
  last_purchase_at = NOW(),
  updated_at = NOW()
WHERE id = $1
`, accountID, newBalance, amount, granted)
		if err != nil {
			return err
		}

		if err := settlePayment(ctx, tx, reference); err != nil {
			return err
		}
		out = &types.GrantMutation{CreditsGranted: granted, NewBalance: newBalance, PurchaseCount: purchases + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ApplyUnlimitedGrant(ctx context.Context, accountID, reference string, amount int64, days int) (*types.GrantMutation, error) {
	var out *types.GrantMutation
	err := s.withGrantTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var currentExpires *time.Time
		var purchases int
		err := tx.QueryRow(ctx, `
SELECT unlimited_expires_at, purchase_count
FROM accounts
WHERE id = $1
FOR UPDATE
`, accountID).Scan(&currentExpires, &purchases)
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		// An active plan extends from its current expiry so no paid time is
		// lost; an expired or absent plan restarts from now.
		base := s.now()
		if currentExpires != nil && currentExpires.After(base) {
			base = *currentExpires
		}
		newExpires := base.Add(time.Duration(days) * 24 * time.Hour)

		_, err = tx.Exec(ctx, `
UPDATE accounts SET
  plan_kind = 'unlimited',
  unlimited_expires_at = $2,
  purchase_count = purchase_count + 1,
  last_purchase_amount = $3,
  last_purchase_credits = 0,
  last_purchase_at = NOW(),
  updated_at = NOW()
WHERE id = $1
`, accountID, newExpires, amount)
		if err != nil {
			return err
		}

		if err := settlePayment(ctx, tx, reference); err != nil {
			return err
		}
		out = &types.GrantMutation{NewExpiry: newExpires, PurchaseCount: purchases + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settlePayment flips the processing marker inside the grant transaction.
// Zero rows means the marker was reaped and re-admitted elsewhere; this
// attempt must not commit on top of it.
func settlePayment(ctx context.Context, tx pgx.Tx, reference string) error {
	tag, err := tx.Exec(ctx, `
UPDATE payments
SET status = 'succeeded'
WHERE reference = $1 AND status = 'processing'
`, reference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentTakenOver
	}
	return nil
}

func (s *PostgresStore) withGrantTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runGrantTx(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt < grantRetries && retryableTxError(err) {
			continue
		}
		return err
	}
}

func (s *PostgresStore) runGrantTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryableTxError reports serialization failures and deadlocks, the two
// SQLSTATEs worth a bounded in-place retry.
func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
