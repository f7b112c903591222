// Package audit keeps a trail of supervisor actions: reversals, commission
// policy edits, goal changes and drawer operations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Entry is one audited action.
type Entry struct {
	ID         int64           `json:"id"`
	BranchID   string          `json:"branchId,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	ActorRole  string          `json:"actorRole,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId,omitempty"`
	Method     string          `json:"method"`
	Route      string          `json:"route"`
	Status     int             `json:"status"`
	IP         string          `json:"ip,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Store persists and lists entries.
type Store interface {
	InsertAuditLog(ctx context.Context, e Entry) error
	ListAuditLogs(ctx context.Context, branchID string, limit, offset int) ([]Entry, int, error)
}

// Service records entries when enabled.
type Service struct {
	Store   Store
	Enabled bool
	Now     func() time.Time
}

// Record normalises e and stores it.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		e.Action = strings.ToUpper(e.Method) + " " + e.Route
	}
	if strings.TrimSpace(e.Resource) == "" {
		e.Resource = resourceFromRoute(e.Route)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.Store.InsertAuditLog(ctx, e)
}

// List returns one page of a branch's trail, newest first.
func (s *Service) List(ctx context.Context, branchID string, limit, offset int) ([]Entry, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("audit: store not configured")
	}
	return s.Store.ListAuditLogs(ctx, branchID, limit, offset)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// resourceFromRoute turns /api/v1/sales/{id}/reverse into "sales".
func resourceFromRoute(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" {
		segments = segments[2:]
	}
	for _, seg := range segments {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			return seg
		}
	}
	return "unknown"
}
