package store

import (
	"context"
	"time"
)

const (
	ActionOpen      = "open"
	ActionCompleted = "completed"
	ActionDismissed = "dismissed"
)

// Action is one recommended next step for a household, keyed by title.
type Action struct {
	HouseholdID string    `json:"householdId"`
	Title       string    `json:"title"`
	Detail      string    `json:"detail"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpsertAction records a recommendation, preserving an existing completed or
// dismissed status.
func (s *Store) UpsertAction(ctx context.Context, a Action) error {
	defer s.observe("upsert_action", time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actions (household_id, title, detail, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (household_id, title) DO UPDATE SET detail = EXCLUDED.detail`,
		a.HouseholdID, a.Title, a.Detail, ActionOpen)
	return err
}

func (s *Store) ListActions(ctx context.Context, householdID string) ([]Action, error) {
	defer s.observe("list_actions", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT household_id, title, detail, status, updated_at
		FROM actions WHERE household_id = $1
		ORDER BY updated_at DESC`, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.HouseholdID, &a.Title, &a.Detail, &a.Status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SetActionStatus marks an action completed or dismissed. It reports whether
// the action existed.
func (s *Store) SetActionStatus(ctx context.Context, householdID, title, status string) (bool, error) {
	defer s.observe("set_action_status", time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE actions SET status = $3, updated_at = now()
		WHERE household_id = $1 AND title = $2`,
		householdID, title, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
