package store

import (
	"context"

	"github.com/noah-isme/backend-pdv/internal/audit"
)

// InsertAuditLog appends one entry to the trail.
func (q *Queries) InsertAuditLog(ctx context.Context, e audit.Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	_, err := q.db.Exec(ctx, `INSERT INTO audit_logs
(filial_id, actor_id, actor_role, action, resource, resource_id, method, route, status, ip, request_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		nullable(e.BranchID), nullable(e.ActorID), e.ActorRole, e.Action, e.Resource, e.ResourceID,
		e.Method, e.Route, e.Status, e.IP, e.RequestID, metadata, e.CreatedAt)
	return wrap("insert audit log", err)
}

// ListAuditLogs pages a branch's trail newest first and reports the total count.
func (q *Queries) ListAuditLogs(ctx context.Context, branchID string, limit, offset int) ([]audit.Entry, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE filial_id = $1`, branchID).Scan(&total); err != nil {
		return nil, 0, wrap("count audit logs", err)
	}
	rows, err := q.db.Query(ctx, `SELECT id, COALESCE(filial_id::text, ''), COALESCE(actor_id::text, ''), actor_role,
action, resource, resource_id, method, route, status, ip, request_id, metadata, created_at
FROM audit_logs WHERE filial_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, branchID, limit, offset)
	if err != nil {
		return nil, 0, wrap("list audit logs", err)
	}
	defer rows.Close()
	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var (
			e        audit.Entry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.BranchID, &e.ActorID, &e.ActorRole, &e.Action, &e.Resource, &e.ResourceID,
			&e.Method, &e.Route, &e.Status, &e.IP, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, wrap("scan audit log", err)
		}
		e.Metadata = metadata
		out = append(out, e)
	}
	return out, total, wrap("list audit logs", rows.Err())
}
