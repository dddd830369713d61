package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	core "github.com/kilianp07/atmcast/core/history"
	"github.com/kilianp07/atmcast/core/model"
)

// SQLiteStore persists demand observations in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS atm_demand (
        atm_id TEXT NOT NULL,
        day INTEGER NOT NULL,
        demand REAL NOT NULL,
        PRIMARY KEY(atm_id, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts or replaces the observation for each ATM and day.
func (s *SQLiteStore) Add(ctx context.Context, recs ...model.HistoricalRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO atm_demand (atm_id, day, demand)
        VALUES (?, ?, ?)
        ON CONFLICT(atm_id, day) DO UPDATE SET demand = excluded.demand`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.ATMID, model.Day(r.Date).Unix(), r.Demand); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Records returns observations matching q ordered by ATM then day.
func (s *SQLiteStore) Records(ctx context.Context, q core.Query) ([]model.HistoricalRecord, error) {
	query := `SELECT atm_id, day, demand FROM atm_demand WHERE 1=1`
	var args []any
	if q.ATMID != "" {
		query += ` AND atm_id = ?`
		args = append(args, q.ATMID)
	}
	if !q.Start.IsZero() {
		query += ` AND day >= ?`
		args = append(args, model.Day(q.Start).Unix())
	}
	if !q.End.IsZero() {
		query += ` AND day <= ?`
		args = append(args, model.Day(q.End).Unix())
	}
	query += ` ORDER BY atm_id, day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.HistoricalRecord
	for rows.Next() {
		var id string
		var ts int64
		var demand float64
		if err := rows.Scan(&id, &ts, &demand); err != nil {
			return nil, err
		}
		res = append(res, model.HistoricalRecord{ATMID: id, Date: time.Unix(ts, 0).UTC(), Demand: demand})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
