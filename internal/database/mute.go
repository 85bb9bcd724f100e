// internal/database/mute.go

package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const muteSchema = `
	CREATE TABLE IF NOT EXISTS mute_lists (
		owner      TEXT PRIMARY KEY,
		muted      TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// EnsureSchema creates the mute_lists table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, muteSchema); err != nil {
		return fmt.Errorf("create mute_lists: %w", err)
	}
	return nil
}

// PostgresMuteStore keeps one mute_lists row per owner.
type PostgresMuteStore struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func NewPostgresMuteStore(pool *pgxpool.Pool, logger logrus.FieldLogger) *PostgresMuteStore {
	return &PostgresMuteStore{pool: pool, log: logger.WithField("store", "postgres")}
}

// Load returns owner's mute list, or an empty list when no row exists.
func (s *PostgresMuteStore) Load(ctx context.Context, owner string) ([]string, error) {
	q := `SELECT muted FROM mute_lists WHERE owner=$1`
	var muted []string
	err := s.pool.QueryRow(ctx, q, owner).Scan(&muted)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mutes for %s: %w", owner, err)
	}
	slices.Sort(muted)
	return muted, nil
}

// Save upserts owner's mute list.
func (s *PostgresMuteStore) Save(ctx context.Context, owner string, muted []string) error {
	if muted == nil {
		muted = []string{}
	}
	q := `
		INSERT INTO mute_lists (owner, muted)
		VALUES ($1, $2)
		ON CONFLICT (owner)
		DO UPDATE SET muted=EXCLUDED.muted, updated_at=NOW()
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, owner, muted)
		return err
	})
	if err != nil {
		return fmt.Errorf("save mutes for %s: %w", owner, err)
	}
	s.log.Debugf("saved %d muted names for %s", len(muted), owner)
	return nil
}
