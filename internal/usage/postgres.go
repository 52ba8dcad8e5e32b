package usage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// newPostgresStore connects at construction time so a bad DATABASE_URL
// fails the boot, not the first redemption. Claim is called from
// concurrent event goroutines and must never mutate the store.
func newPostgresStore(dsn string) (*postgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool}, nil
}

// Claim uses INSERT ... ON CONFLICT to atomically record the first redeemer.
// Table `order_usage` must exist (see schema.sql in this package).
func (s *postgresStore) Claim(ctx context.Context, orderID, userID string) (Claim, error) {
	const ins = `INSERT INTO order_usage (order_id, user_id, created_at)
	             VALUES ($1, $2, now())
	             ON CONFLICT (order_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, ins, orderID, userID)
	if err != nil {
		return Claim{}, err
	}
	if tag.RowsAffected() > 0 {
		return Claim{Owner: userID}, nil
	}

	const sel = `SELECT user_id FROM order_usage WHERE order_id = $1`
	var owner string
	if err := s.pool.QueryRow(ctx, sel, orderID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row vanished between Exec and Scan; treat as a plain duplicate.
			return Claim{Duplicate: true}, nil
		}
		return Claim{}, err
	}
	return Claim{Duplicate: true, Owner: owner}, nil
}
