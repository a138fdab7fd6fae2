package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/weatherstation/internal/logic"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// row mirrors the readings table. Every value column is nullable.
type row struct {
	ID          int64           `db:"id"`
	Location    int             `db:"location"`
	Temperature sql.NullFloat64 `db:"temperature"`
	Humidity    sql.NullFloat64 `db:"humidity"`
	Timestamp   sql.NullInt64   `db:"timestamp"`
}

func (r row) reading() logic.Reading {
	out := logic.Reading{
		ID:       r.ID,
		Location: logic.Location(r.Location),
	}
	if r.Temperature.Valid {
		out.Temperature = logic.Float(r.Temperature.Float64)
	}
	if r.Humidity.Valid {
		out.Humidity = logic.Float(r.Humidity.Float64)
	}
	if r.Timestamp.Valid {
		out.Timestamp = time.UnixMilli(r.Timestamp.Int64)
	}
	return out
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// SQLStore keeps readings in a SQLite or PostgreSQL table.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, storageError("connect", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; serialize through one connection.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initializeSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.db.DriverName() == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id ` + id + `,
			location INTEGER NOT NULL,
			temperature DOUBLE PRECISION,
			humidity DOUBLE PRECISION,
			timestamp BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_location_timestamp
			ON readings(location, timestamp DESC)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return storageError("initialize schema", err)
		}
	}
	return nil
}

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, r logic.Reading) (logic.Reading, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	args := []interface{}{
		int(r.Location),
		nullFloat(r.Temperature),
		nullFloat(r.Humidity),
		r.TimestampMillis(),
	}

	if s.db.DriverName() == DriverPostgres {
		q := s.db.Rebind(`INSERT INTO readings (location, temperature, humidity, timestamp)
			VALUES (?, ?, ?, ?) RETURNING id`)
		if err := s.db.QueryRowxContext(ctx, q, args...).Scan(&r.ID); err != nil {
			return logic.Reading{}, storageError("insert reading", err)
		}
		return r, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (location, temperature, humidity, timestamp) VALUES (?, ?, ?, ?)`,
		args...)
	if err != nil {
		return logic.Reading{}, storageError("insert reading", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return logic.Reading{}, storageError("insert reading", err)
	}
	return r, nil
}

// Latest implements Store.
func (s *SQLStore) Latest(ctx context.Context, loc logic.Location) (logic.Reading, bool, error) {
	var rw row
	q := s.db.Rebind(`SELECT id, location, temperature, humidity, timestamp
		FROM readings WHERE location = ? ORDER BY timestamp DESC, id DESC LIMIT 1`)
	err := s.db.GetContext(ctx, &rw, q, int(loc))
	if errors.Is(err, sql.ErrNoRows) {
		return logic.Reading{}, false, nil
	}
	if err != nil {
		return logic.Reading{}, false, storageError("latest reading", err)
	}
	return rw.reading(), true, nil
}

// LastN implements Store.
func (s *SQLStore) LastN(ctx context.Context, loc logic.Location, n int) ([]logic.Reading, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []row
	q := s.db.Rebind(`SELECT id, location, temperature, humidity, timestamp
		FROM readings WHERE location = ? ORDER BY timestamp DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, int(loc), n); err != nil {
		return nil, storageError("last readings", err)
	}
	return toReadings(rows), nil
}

// All implements Store.
func (s *SQLStore) All(ctx context.Context, loc logic.Location) ([]logic.Reading, error) {
	var rows []row
	q := s.db.Rebind(`SELECT id, location, temperature, humidity, timestamp
		FROM readings WHERE location = ?`)
	if err := s.db.SelectContext(ctx, &rows, q, int(loc)); err != nil {
		return nil, storageError("all readings", err)
	}
	return toReadings(rows), nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, loc logic.Location) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM readings WHERE location = ?`)
	if err := s.db.GetContext(ctx, &n, q, int(loc)); err != nil {
		return 0, storageError("count readings", err)
	}
	return n, nil
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	return storageError("ping", s.db.PingContext(ctx))
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return storageError("close", s.db.Close())
}

func toReadings(rows []row) []logic.Reading {
	out := make([]logic.Reading, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.reading())
	}
	return out
}
