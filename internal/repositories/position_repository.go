// repositories/position_repository.go

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// realPing excludes synthetic trigger rows.
const realPing = "COALESCE(battery_status, '') NOT IN ('" +
	models.StatusLocationRequestTrigger + "', '" + models.StatusTimestampUpdateTrigger + "')"

const pingColumns = "id, user_id, latitude, longitude, updated_at, battery_level, battery_status"

type PositionRepository struct {
	db *sql.DB
}

func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// ListPings returns every row (trigger rows included) newest first. A zero since
// disables the lower bound.
func (r *PositionRepository) ListPings(ctx context.Context, since time.Time) ([]models.LocationPing, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if since.IsZero() {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+pingColumns+`
			FROM locations
			ORDER BY updated_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+pingColumns+`
			FROM locations
			WHERE updated_at >= $1
			ORDER BY updated_at DESC`, since)
	}
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	return scanPings(rows)
}

func (r *PositionRepository) Insert(ctx context.Context, p *models.LocationPing) error {
	query := `
		INSERT INTO locations (user_id, latitude, longitude, updated_at, battery_level, battery_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		p.UserID,
		p.Latitude,
		p.Longitude,
		p.UpdatedAt,
		nullableInt(p.BatteryLevel),
		nullableString(p.BatteryStatus),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// InsertMany writes all pings in one transaction using COPY.
func (r *PositionRepository) InsertMany(ctx context.Context, pings []models.LocationPing) (err error) {
	if len(pings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("locations",
		"user_id", "latitude", "longitude", "updated_at", "battery_level", "battery_status"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, p := range pings {
		if _, err = stmt.ExecContext(ctx,
			p.UserID,
			p.Latitude,
			p.Longitude,
			p.UpdatedAt,
			nullableInt(p.BatteryLevel),
			nullableString(p.BatteryStatus),
		); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy row: %w", err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ActiveUserIDs lists users with a real ping since the given time, most recent first.
func (r *PositionRepository) ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM locations
		WHERE updated_at >= $1 AND `+realPing+`
		GROUP BY user_id
		ORDER BY MAX(updated_at) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	return scanStrings(rows)
}

// RespondedUserIDs returns which of userIDs sent a real ping since the given time.
func (r *PositionRepository) RespondedUserIDs(ctx context.Context, userIDs []string, since time.Time) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM locations
		WHERE user_id = ANY($1) AND updated_at >= $2 AND `+realPing,
		pq.Array(userIDs), since)
	if err != nil {
		return nil, fmt.Errorf("query responded users: %w", err)
	}
	return scanStrings(rows)
}

func (r *PositionRepository) HasAnyPing(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM locations)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check locations: %w", err)
	}
	return exists, nil
}

func (r *PositionRepository) History(ctx context.Context, userID string, from, to time.Time) ([]models.LocationPing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pingColumns+`
		FROM locations
		WHERE user_id = $1 AND updated_at BETWEEN $2 AND $3 AND `+realPing+`
		ORDER BY updated_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanPings(rows)
}

// LatestForUser returns nil, nil when the user has no real ping.
func (r *PositionRepository) LatestForUser(ctx context.Context, userID string) (*models.LocationPing, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+pingColumns+`
		FROM locations
		WHERE user_id = $1 AND `+realPing+`
		ORDER BY updated_at DESC
		LIMIT 1`, userID)

	p, err := scanPing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest location: %w", err)
	}
	return &p, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPing(s scanner) (models.LocationPing, error) {
	var (
		p       models.LocationPing
		battery sql.NullInt64
		status  sql.NullString
	)
	if err := s.Scan(&p.ID, &p.UserID, &p.Latitude, &p.Longitude, &p.UpdatedAt, &battery, &status); err != nil {
		return p, err
	}
	if battery.Valid {
		level := int(battery.Int64)
		p.BatteryLevel = &level
	}
	p.BatteryStatus = status.String
	return p, nil
}

func scanPings(rows *sql.Rows) ([]models.LocationPing, error) {
	defer rows.Close()

	result := make([]models.LocationPing, 0)
	for rows.Next() {
		p, err := scanPing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
