package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repository writes audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("audit_logs").
		Columns("id", "actor", "role", "action", "resource_type", "resource_id",
			"metadata", "payload_digest", "ip", "user_agent", "created_at").
		Values(entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
			[]byte(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
