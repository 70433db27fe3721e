package repository

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry records a manual entry into activation state: who attempted
// what, against which resource, and whether the permission check allowed
// it. Denied attempts are recorded too.
type AuditEntry struct {
	ID          int64     `json:"id"`
	PrincipalID string    `json:"principalId"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	Allowed     bool      `json:"allowed"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InsertAuditLog appends an entry to the audit log.
func (r *PostgresRepository) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (principal_id, action, resource, allowed, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.PrincipalID, entry.Action, entry.Resource, entry.Allowed, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent limit entries, newest first.
func (r *PostgresRepository) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, principal_id, action, resource, allowed, detail, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0, limit)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.PrincipalID, &e.Action, &e.Resource, &e.Allowed, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit rows: %w", err)
	}

	return entries, nil
}
