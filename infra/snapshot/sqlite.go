// Package snapshot persists the last known vehicle positions in SQLite so a
// restart does not start from an empty status list.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
)

// SQLiteStore implements tracking.Snapshotter.
type SQLiteStore struct {
	db *sql.DB
}

var _ tracking.Snapshotter = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS vehicle_status (
        vehicle_id TEXT PRIMARY KEY,
        trip_id TEXT NOT NULL,
        lat REAL NOT NULL,
        lng REAL NOT NULL,
        reported_at INTEGER NOT NULL,
        received_at INTEGER NOT NULL,
        updates INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save replaces the stored snapshot with statuses in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, statuses []tracking.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_status`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vehicle_status
        (vehicle_id, trip_id, lat, lng, reported_at, received_at, updates)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, st := range statuses {
		if _, err := stmt.ExecContext(ctx, st.VehicleID, st.TripID, st.Coordinate.Lat, st.Coordinate.Lng,
			unixMilli(st.ReportedAt), unixMilli(st.ReceivedAt), int64(st.Updates)); err != nil {
			return fmt.Errorf("save %s: %w", st.VehicleID, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored statuses ordered by vehicle id.
func (s *SQLiteStore) Load(ctx context.Context) ([]tracking.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vehicle_id, trip_id, lat, lng, reported_at, received_at, updates
        FROM vehicle_status ORDER BY vehicle_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []tracking.Status
	for rows.Next() {
		var (
			st                 tracking.Status
			lat, lng           float64
			reported, received int64
			updates            int64
		)
		if err := rows.Scan(&st.VehicleID, &st.TripID, &lat, &lng, &reported, &received, &updates); err != nil {
			return nil, err
		}
		st.Coordinate = model.Coordinate{Lat: lat, Lng: lng}
		st.ReportedAt = fromUnixMilli(reported)
		st.ReceivedAt = fromUnixMilli(received)
		st.Updates = uint64(updates)
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
