package callhistory

import (
	"context"
	"database/sql"
	"errors"

	"intercom-platform/internal/calls"
)

// NOTE: This repository assumes the following tables exist:
// - intercom_calls
// - call_participants
// - apartments / buildings / profiles (read-only joins)
// All writes belong to the calling subsystem; this side only reads.

// PostgresRepo reads call history rows via database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ApartmentForResident(ctx context.Context, residentID string) (ApartmentLink, error) {
	const q = `
SELECT a.id, a.number, b.id, b.name
FROM apartment_residents ar
JOIN apartments a ON a.id = ar.apartment_id
JOIN buildings b ON b.id = a.building_id
WHERE ar.resident_id = $1
LIMIT 1
`
	var link ApartmentLink
	err := r.db.QueryRowContext(ctx, q, residentID).Scan(
		&link.ApartmentID,
		&link.Number,
		&link.BuildingID,
		&link.BuildingName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Not linked is a state, not an error.
		return ApartmentLink{}, nil
	}
	if err != nil {
		return ApartmentLink{}, err
	}
	return link, nil
}

func (r *PostgresRepo) ListCalls(ctx context.Context, apartmentID string, query CallQuery) ([]calls.Call, error) {
	const q = `
SELECT
	c.id,
	c.status,
	c.started_at,
	c.answered_at,
	c.ended_at,
	c.duration_seconds,
	COALESCE(c.initiator_id, ''),
	COALESCE(c.initiator_type, ''),
	c.apartment_id,
	a.building_id,
	COALESCE(p.full_name, ''),
	a.number,
	b.name
FROM intercom_calls c
JOIN apartments a ON a.id = c.apartment_id
JOIN buildings b ON b.id = a.building_id
LEFT JOIN profiles p ON p.id = c.doorman_id
WHERE c.apartment_id = $1
  AND ($2 = '' OR c.status = $2)
  AND ($3::timestamptz IS NULL OR c.started_at >= $3)
ORDER BY c.started_at DESC
OFFSET $4
LIMIT $5
`
	limit := query.Limit
	if limit <= 0 {
		limit = PageSize
	}
	rows, err := r.db.QueryContext(ctx, q, apartmentID, string(query.Status), query.StartedAfter, query.Offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		var answeredAt, endedAt sql.NullTime
		var duration sql.NullInt64
		if err := rows.Scan(
			&c.ID,
			&c.Status,
			&c.StartedAt,
			&answeredAt,
			&endedAt,
			&duration,
			&c.InitiatorID,
			&c.InitiatorType,
			&c.ApartmentID,
			&c.BuildingID,
			&c.DoormanName,
			&c.ApartmentNumber,
			&c.BuildingName,
		); err != nil {
			return nil, err
		}
		if answeredAt.Valid {
			t := answeredAt.Time
			c.AnsweredAt = &t
		}
		if endedAt.Valid {
			t := endedAt.Time
			c.EndedAt = &t
		}
		if duration.Valid {
			d := int(duration.Int64)
			c.DurationSeconds = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListParticipants(ctx context.Context, callID string) ([]calls.CallParticipant, error) {
	const q = `
SELECT resident_id, COALESCE(participant_type, 'resident'), status, joined_at, left_at
FROM call_participants
WHERE call_id = $1
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.CallParticipant
	for rows.Next() {
		var p calls.CallParticipant
		var joined, left sql.NullTime
		if err := rows.Scan(&p.ParticipantID, &p.ParticipantType, &p.Status, &joined, &left); err != nil {
			return nil, err
		}
		if joined.Valid {
			t := joined.Time
			p.JoinedAt = &t
		}
		if left.Valid {
			t := left.Time
			p.LeftAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
