package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage persists audit entries to the audit_log table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	if pool == nil {
		panic("audit: pool cannot be nil")
	}
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Store(ctx context.Context, entry Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Join(errors.New("failed to encode audit details"), err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, action, entity, entity_id, actor, details, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		entry.ID, entry.Action, entry.Entity, entry.EntityID, entry.Actor, details, entry.CreatedAt,
	)
	return err
}
