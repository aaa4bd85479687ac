// Package postgres is a store.Store backed by PostgreSQL. The critical
// section of a listing is a transaction holding the listing row lock.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

const (
	codeLockNotAvailable = "55P03"
	codeUniqueViolation  = "23505"
	orderListingKey      = "orders_listing_id_key"
)

// Store implements store.Store.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, lockTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return New(db, lockTimeout), nil
}

// New wraps an open database handle.
func New(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// InitSchema creates tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateListing(ctx context.Context, l *core.Listing) error {
	_, err := s.db.ExecContext(ctx, insertListing, listingArgs(l)...)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (s *Store) Atomic(ctx context.Context, listingID string, fn func(store.Tx) error) (err error) {
	// ctx bounds the wait for the row lock only; a cancelled ctx must not
	// roll back a transaction that already holds it
	sqlTx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = sqlTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	row := sqlTx.QueryRowContext(ctx, selectListing+" WHERE id = $1 FOR UPDATE", listingID)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", core.ErrListingNotFound, listingID)
	}
	if err != nil {
		return classify(err, "failed to lock listing")
	}

	// the row lock is held; finish regardless of the caller's ctx
	tx := &pgTx{ctx: context.WithoutCancel(ctx), tx: sqlTx, listing: l}
	if err = tx.load(); err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return classify(err, "failed to commit")
	}
	return nil
}

func (s *Store) OfferListing(ctx context.Context, offerID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT listing_id FROM offers WHERE id = $1`, offerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", core.ErrOfferNotFound, offerID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find offer: %w", err)
	}
	return id, nil
}

func (s *Store) OrderListing(ctx context.Context, orderID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT listing_id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find order: %w", err)
	}
	return id, nil
}

func (s *Store) DueAuctions(ctx context.Context, now time.Time) ([]string, error) {
	return s.ids(ctx, `
		SELECT id FROM listings
		WHERE pricing_mode = $1 AND status = $2 AND auction_end <= $3
		ORDER BY id`, core.PricingAuction, core.ListingActive, now)
}

func (s *Store) DueOffers(ctx context.Context, now time.Time) ([]string, error) {
	return s.ids(ctx, `
		SELECT DISTINCT listing_id FROM offers
		WHERE status IN ($1, $2) AND expires_at <= $3
		ORDER BY listing_id`, core.OfferPending, core.OfferCountered, now)
}

func (s *Store) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// classify maps lock and uniqueness failures to engine errors.
func classify(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeLockNotAvailable:
			return fmt.Errorf("%w: %s", core.ErrContention, pqErr.Message)
		case pqErr.Code == codeUniqueViolation && pqErr.Constraint == orderListingKey:
			return fmt.Errorf("%w: %s", core.ErrAlreadySold, pqErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
