package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements VersionedStore on the thread_ledgers table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var data []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT record, version FROM thread_ledgers WHERE thread_key = $1`,
		key,
	).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return data, version, nil
}

func (s *PGStore) Put(ctx context.Context, key string, data []byte, expectedVersion int64) error {
	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO thread_ledgers (thread_key, record, version)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (thread_key) DO NOTHING`,
			key, data,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE thread_ledgers
		 SET record = $2, version = version + 1, updated_at = now()
		 WHERE thread_key = $1 AND version = $3`,
		key, data, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

var _ VersionedStore = (*PGStore)(nil)
