package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSetting(row pgx.Row) (*Setting, error) {
	var s Setting

	err := row.Scan(
		&s.Key,
		&s.Value,
		&s.Type,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) Get(ctx context.Context, key string) (*Setting, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT key, value, value_type, updated_at
		FROM salon_settings
		WHERE key = $1
	`, key)
	return scanSetting(row)
}

func (r *PgRepository) Upsert(ctx context.Context, s Setting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salon_settings (key, value, value_type, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    value_type = EXCLUDED.value_type,
		    updated_at = now()
	`, s.Key, s.Value, s.Type)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", s.Key, err)
	}

	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, value, value_type, updated_at
		FROM salon_settings
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
