// Package audit keeps a trail of authentication events: logins, failed
// attempts, logouts and token refreshes.
package audit

import (
	"context"
	"log/slog"
	"time"
)

const (
	ActionLogin   = "auth.login"
	ActionLogout  = "auth.logout"
	ActionRefresh = "auth.refresh"
)

type Event struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	RequestID string    `json:"requestId,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Filter struct {
	CompanyID string
	ActorID   string
	Action    string
	Outcome   string
}

type Store interface {
	Insert(ctx context.Context, evt Event) error
	List(ctx context.Context, filter Filter, limit int) ([]Event, error)
}

type Service struct {
	Store Store
	Now   func() time.Time
}

func New(store Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Record stamps and stores evt. The trail is best effort: a failed write
// is logged and never fails the request that produced the event.
func (s *Service) Record(ctx context.Context, evt Event) {
	if s == nil || s.Store == nil {
		return
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.Now().UTC()
	}
	if err := s.Store.Insert(ctx, evt); err != nil {
		slog.Warn("audit record failed", "action", evt.Action, "outcome", evt.Outcome, "err", err)
	}
}

// List returns matching events, newest first. limit <= 0 means 100.
func (s *Service) List(ctx context.Context, filter Filter, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.Store.List(ctx, filter, limit)
}
