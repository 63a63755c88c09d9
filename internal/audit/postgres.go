package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists entries to the audit_entries table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an existing pool. The pool is owned by the caller;
// Close here is a no-op so the pool can be shared with the store.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

const auditColumns = `id, flag_id, flag_key, action, actor_id, payload, ip_address, user_agent, created_at`

func (s *PostgresSink) Append(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_entries (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.FlagID, entry.FlagKey, entry.Action, entry.ActorID,
		payload, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) ForFlag(ctx context.Context, flagKey string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_entries
		WHERE flag_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, flagKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit by flag: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresSink) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_entries
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit by actor: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresSink) Close() error { return nil }

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var payload []byte
		if err := rows.Scan(
			&entry.ID, &entry.FlagID, &entry.FlagKey, &entry.Action,
			&entry.ActorID, &payload, &entry.IPAddress, &entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
