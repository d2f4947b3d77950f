package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	DB *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Insert(ctx context.Context, evt Event) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO auth_events (company_id, actor_user_id, subject, action, outcome, request_id, ip, created_at)
    VALUES (NULLIF($1,''), NULLIF($2,''), $3, $4, $5, $6, $7, $8)
  `, evt.CompanyID, evt.ActorID, evt.Subject, evt.Action, evt.Outcome, evt.RequestID, evt.IP, evt.CreatedAt)
	return err
}

func (s *PGStore) List(ctx context.Context, filter Filter, limit int) ([]Event, error) {
	query, args := buildQuery(filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.CompanyID, &evt.ActorID, &evt.Subject, &evt.Action, &evt.Outcome, &evt.RequestID, &evt.IP, &evt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildQuery(filter Filter) (string, []any) {
	query := `SELECT id, COALESCE(company_id, ''), COALESCE(actor_user_id, ''), subject, action, outcome, request_id, ip, created_at
    FROM auth_events WHERE 1=1`
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("company_id", filter.CompanyID)
	add("actor_user_id", filter.ActorID)
	add("action", filter.Action)
	add("outcome", filter.Outcome)
	return query, args
}
