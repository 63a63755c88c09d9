package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
//
// Expected schema:
//
//	flags(id uuid pk, key text unique, description text, enabled bool,
//	      type text, rollout_percentage int, created_by text,
//	      created_at timestamptz, updated_at timestamptz, deleted_at timestamptz)
//	flag_variants(id uuid pk, flag_id uuid fk, key text, value text, weight int,
//	      created_at timestamptz)
//	flag_targets(id uuid pk, flag_id uuid fk, target_type text, target_value text,
//	      enabled bool, percentage int null, variant_key text null,
//	      priority int, created_at timestamptz)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const flagColumns = `id, key, description, enabled, type, rollout_percentage,
	created_by, created_at, updated_at, deleted_at`

// GetFlagByKey loads one live flag with its variants and targets.
func (p *PostgresStore) GetFlagByKey(ctx context.Context, key string) (*Flag, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+flagColumns+` FROM flags WHERE key = $1 AND deleted_at IS NULL`, key)

	flag, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := p.loadChildren(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

// ListFlags returns flags ordered by key. Children are loaded per flag;
// listing is an operator path, not the hot evaluation path.
func (p *PostgresStore) ListFlags(ctx context.Context, includeDeleted bool) ([]Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY key`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, *flag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range flags {
		if err := p.loadChildren(ctx, &flags[i]); err != nil {
			return nil, err
		}
	}
	return flags, nil
}

// CreateFlag inserts a new flag row.
func (p *PostgresStore) CreateFlag(ctx context.Context, flag Flag) (*Flag, error) {
	flag.ID = uuid.New()
	now := time.Now().UTC()
	flag.CreatedAt = now
	flag.UpdatedAt = now

	_, err := p.pool.Exec(ctx,
		`INSERT INTO flags (id, key, description, enabled, type, rollout_percentage,
			created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		flag.ID, flag.Key, flag.Description, flag.Enabled, flag.Type,
		flag.RolloutPercentage, flag.CreatedBy, flag.CreatedAt, flag.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert flag: %w", err)
	}
	return &flag, nil
}

// UpdateFlag applies the non-nil fields of params via COALESCE.
func (p *PostgresStore) UpdateFlag(ctx context.Context, params UpdateParams) (*Flag, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE flags SET
			description = COALESCE($2, description),
			enabled = COALESCE($3, enabled),
			type = COALESCE($4, type),
			rollout_percentage = COALESCE($5, rollout_percentage),
			updated_at = now()
		 WHERE key = $1 AND deleted_at IS NULL
		 RETURNING `+flagColumns,
		params.Key, params.Description, params.Enabled, params.Type, params.RolloutPercentage)

	flag, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := p.loadChildren(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

// SoftDeleteFlag stamps deleted_at; child rows are kept by foreign key and
// excluded from evaluation upstream because GetFlagByKey no longer sees the flag.
func (p *PostgresStore) SoftDeleteFlag(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE flags SET deleted_at = now(), updated_at = now()
		 WHERE key = $1 AND deleted_at IS NULL`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateVariant inserts a variant row.
func (p *PostgresStore) CreateVariant(ctx context.Context, variant Variant) (*Variant, error) {
	variant.ID = uuid.New()
	variant.CreatedAt = time.Now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO flag_variants (id, flag_id, key, value, weight, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		variant.ID, variant.FlagID, variant.Key, variant.Value, variant.Weight,
		variant.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert variant: %w", err)
	}
	p.touch(ctx, variant.FlagID)
	return &variant, nil
}

// CreateTarget inserts a targeting rule row.
func (p *PostgresStore) CreateTarget(ctx context.Context, target Target) (*Target, error) {
	target.ID = uuid.New()
	target.CreatedAt = time.Now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO flag_targets (id, flag_id, target_type, target_value, enabled,
			percentage, variant_key, priority, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		target.ID, target.FlagID, target.Type, target.Value, target.Enabled,
		target.Percentage, target.VariantKey, target.Priority, target.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert target: %w", err)
	}
	p.touch(ctx, target.FlagID)
	return &target, nil
}

// Close releases the underlying pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) touch(ctx context.Context, flagID uuid.UUID) {
	// Best effort; a stale updated_at never affects evaluation.
	_, _ = p.pool.Exec(ctx, `UPDATE flags SET updated_at = now() WHERE id = $1`, flagID)
}

// loadChildren fills Variants and Targets, both in the declared stable order
// (created_at, then id) so evaluation sees the same sequence on every backend.
func (p *PostgresStore) loadChildren(ctx context.Context, flag *Flag) error {
	rows, err := p.pool.Query(ctx,
		`SELECT id, flag_id, key, value, weight, created_at
		 FROM flag_variants WHERE flag_id = $1 ORDER BY created_at, id`, flag.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.FlagID, &v.Key, &v.Value, &v.Weight, &v.CreatedAt); err != nil {
			return err
		}
		flag.Variants = append(flag.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	trows, err := p.pool.Query(ctx,
		`SELECT id, flag_id, target_type, target_value, enabled, percentage,
			variant_key, priority, created_at
		 FROM flag_targets WHERE flag_id = $1 ORDER BY created_at, id`, flag.ID)
	if err != nil {
		return err
	}
	defer trows.Close()
	for trows.Next() {
		var t Target
		if err := trows.Scan(&t.ID, &t.FlagID, &t.Type, &t.Value, &t.Enabled,
			&t.Percentage, &t.VariantKey, &t.Priority, &t.CreatedAt); err != nil {
			return err
		}
		flag.Targets = append(flag.Targets, t)
	}
	return trows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*Flag, error) {
	var flag Flag
	err := row.Scan(&flag.ID, &flag.Key, &flag.Description, &flag.Enabled,
		&flag.Type, &flag.RolloutPercentage, &flag.CreatedBy,
		&flag.CreatedAt, &flag.UpdatedAt, &flag.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &flag, nil
}
