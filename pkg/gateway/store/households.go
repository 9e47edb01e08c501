package store

import (
	"context"
	"time"
)

type Household struct {
	ID                 string
	StripeCustomerID   string
	SubscriptionStatus string
	CurrentPeriodEnd   *time.Time
	UsedSessions       int
	SessionLimit       int
	CreatedAt          time.Time
}

// EnsureHousehold creates the household row if it does not exist and returns
// the current record either way.
func (s *Store) EnsureHousehold(ctx context.Context, id string) (Household, error) {
	defer s.observe("ensure_household", time.Now())
	row := s.pool.QueryRow(ctx, `
		INSERT INTO households (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, COALESCE(stripe_customer_id, ''), subscription_status,
		          current_period_end, used_sessions, session_limit, created_at`,
		id)
	var h Household
	err := row.Scan(&h.ID, &h.StripeCustomerID, &h.SubscriptionStatus,
		&h.CurrentPeriodEnd, &h.UsedSessions, &h.SessionLimit, &h.CreatedAt)
	return h, err
}

func (s *Store) Household(ctx context.Context, id string) (Household, error) {
	defer s.observe("get_household", time.Now())
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(stripe_customer_id, ''), subscription_status,
		       current_period_end, used_sessions, session_limit, created_at
		FROM households WHERE id = $1`, id)
	var h Household
	err := row.Scan(&h.ID, &h.StripeCustomerID, &h.SubscriptionStatus,
		&h.CurrentPeriodEnd, &h.UsedSessions, &h.SessionLimit, &h.CreatedAt)
	return h, err
}

func (s *Store) SetStripeCustomer(ctx context.Context, householdID, customerID string) error {
	defer s.observe("set_stripe_customer", time.Now())
	_, err := s.pool.Exec(ctx,
		`UPDATE households SET stripe_customer_id = $2 WHERE id = $1`,
		householdID, customerID)
	return err
}

func (s *Store) SetSubscription(ctx context.Context, householdID, status string, periodEnd *time.Time) error {
	defer s.observe("set_subscription", time.Now())
	_, err := s.pool.Exec(ctx,
		`UPDATE households SET subscription_status = $2, current_period_end = $3 WHERE id = $1`,
		householdID, status, periodEnd)
	return err
}

// IncrementUsedSessions bumps the session usage counter and returns the new
// count.
func (s *Store) IncrementUsedSessions(ctx context.Context, householdID string) (int, error) {
	defer s.observe("increment_used_sessions", time.Now())
	var used int
	err := s.pool.QueryRow(ctx,
		`UPDATE households SET used_sessions = used_sessions + 1 WHERE id = $1
		 RETURNING used_sessions`, householdID).Scan(&used)
	return used, err
}
