package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Snapshot struct {
	ID              string          `json:"id"`
	HouseholdID     string          `json:"householdId"`
	Inputs          json.RawMessage `json:"inputs"`
	KPIs            json.RawMessage `json:"kpis"`
	Levels          json.RawMessage `json:"levels"`
	Recommendations json.RawMessage `json:"recommendations"`
	ProvisionalKeys json.RawMessage `json:"provisionalKeys"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type NetWorthPoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// InsertSnapshot stores a new snapshot row and returns it with the generated
// id filled in.
func (s *Store) InsertSnapshot(ctx context.Context, snap Snapshot) (Snapshot, error) {
	defer s.observe("insert_snapshot", time.Now())
	snap.ID = uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO snapshots (id, household_id, inputs, kpis, levels, recommendations, provisional_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		snap.ID, snap.HouseholdID,
		orEmptyObject(snap.Inputs), orEmptyObject(snap.KPIs), orEmptyObject(snap.Levels),
		orEmptyArray(snap.Recommendations), orEmptyArray(snap.ProvisionalKeys))
	err := row.Scan(&snap.CreatedAt)
	return snap, err
}

// LatestSnapshot returns the newest snapshot for a household, or ok=false
// when the household has none yet.
func (s *Store) LatestSnapshot(ctx context.Context, householdID string) (Snapshot, bool, error) {
	defer s.observe("latest_snapshot", time.Now())
	row := s.pool.QueryRow(ctx, `
		SELECT id, household_id, inputs, kpis, levels, recommendations, provisional_keys, created_at
		FROM snapshots WHERE household_id = $1
		ORDER BY created_at DESC LIMIT 1`, householdID)
	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.HouseholdID, &snap.Inputs, &snap.KPIs,
		&snap.Levels, &snap.Recommendations, &snap.ProvisionalKeys, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// UpsertNetWorthPoint records one net-worth observation; a point at the same
// timestamp is overwritten.
func (s *Store) UpsertNetWorthPoint(ctx context.Context, householdID string, p NetWorthPoint) error {
	defer s.observe("upsert_net_worth_point", time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO net_worth_points (household_id, ts, value) VALUES ($1, $2, $3)
		ON CONFLICT (household_id, ts) DO UPDATE SET value = EXCLUDED.value`,
		householdID, p.TS, p.Value)
	return err
}

// NetWorthSeries returns the household's net-worth history in ascending
// timestamp order.
func (s *Store) NetWorthSeries(ctx context.Context, householdID string) ([]NetWorthPoint, error) {
	defer s.observe("net_worth_series", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT ts, value FROM net_worth_points
		WHERE household_id = $1 ORDER BY ts ASC`, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []NetWorthPoint
	for rows.Next() {
		var p NetWorthPoint
		if err := rows.Scan(&p.TS, &p.Value); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, rows.Err()
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

func orEmptyArray(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`[]`)
	}
	return raw
}
