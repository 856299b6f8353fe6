// Package ledger persists cost events for reporting and budget checks.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ffneuron/neuron/pkg/models"
)

// Ledger records and queries cost events.
type Ledger interface {
	// Record stores a cost event.
	Record(ctx context.Context, ev models.CostEvent) error
	// Total returns the summed cost in [since, until).
	Total(ctx context.Context, since, until time.Time) (float64, error)
	// Breakdown aggregates events in [since, until) by service, operation and hour.
	Breakdown(ctx context.Context, since, until time.Time) (models.CostBreakdown, error)
	// Recent returns the latest events, newest first.
	Recent(ctx context.Context, limit int) ([]models.CostEvent, error)
	// UserCosts aggregates one user's events since the given time.
	UserCosts(ctx context.Context, userID string, since time.Time) (models.UserCosts, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS cost_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	operation TEXT NOT NULL,
	units REAL NOT NULL,
	cost REAL NOT NULL,
	saved REAL NOT NULL DEFAULT 0,
	debate_id TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	cache_hit INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_events_time ON cost_events(created_at);
`

const createUserIndex = `CREATE INDEX IF NOT EXISTS idx_cost_events_user ON cost_events(user_id, created_at)`

// New opens a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	if err := addUserColumn(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// addUserColumn upgrades ledgers created before events carried a user.
func addUserColumn(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('cost_events')`)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if name == "user_id" {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !found {
		if _, err := db.Exec(`ALTER TABLE cost_events ADD COLUMN user_id TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	_, err = db.Exec(createUserIndex)
	return err
}

// Record stores a cost event. A zero CreatedAt is stamped with the current time.
func (l *SQLiteLedger) Record(ctx context.Context, ev models.CostEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO cost_events (service, operation, units, cost, saved, debate_id, agent, user_id, cache_hit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Service, ev.Operation, ev.Units, ev.Cost, ev.Saved, ev.DebateID, ev.Agent, ev.UserID, ev.CacheHit, ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record cost event: %w", err)
	}
	return nil
}

// Total returns the summed cost in [since, until).
func (l *SQLiteLedger) Total(ctx context.Context, since, until time.Time) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM cost_events WHERE created_at >= ? AND created_at < ?`,
		since.UnixNano(), until.UnixNano(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// Breakdown aggregates events in [since, until). Hours are UTC.
func (l *SQLiteLedger) Breakdown(ctx context.Context, since, until time.Time) (models.CostBreakdown, error) {
	b := models.CostBreakdown{
		Since:       since,
		Until:       until,
		ByService:   make(map[string]float64),
		ByOperation: make(map[string]float64),
		ByHour:      make(map[int]float64),
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT service, operation, (created_at / 3600000000000) % 24 AS hour,
		        COUNT(*), COALESCE(SUM(cost), 0), COALESCE(SUM(saved), 0), COALESCE(SUM(cache_hit), 0)
		 FROM cost_events WHERE created_at >= ? AND created_at < ?
		 GROUP BY service, operation, hour`,
		since.UnixNano(), until.UnixNano(),
	)
	if err != nil {
		return b, fmt.Errorf("cost breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var service, op string
		var hour int
		var count, hits int64
		var cost, saved float64
		if err := rows.Scan(&service, &op, &hour, &count, &cost, &saved, &hits); err != nil {
			return b, fmt.Errorf("scan breakdown: %w", err)
		}
		b.Events += count
		b.Total += cost
		b.CacheHits += hits
		b.CacheSavings += saved
		b.ByService[service] += cost
		b.ByOperation[op] += cost
		b.ByHour[hour] += cost
	}
	return b, rows.Err()
}

// Recent returns the latest events, newest first.
func (l *SQLiteLedger) Recent(ctx context.Context, limit int) ([]models.CostEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, service, operation, units, cost, saved, debate_id, agent, user_id, cache_hit, created_at
		 FROM cost_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent cost events: %w", err)
	}
	defer rows.Close()

	var events []models.CostEvent
	for rows.Next() {
		var ev models.CostEvent
		var created int64
		if err := rows.Scan(&ev.ID, &ev.Service, &ev.Operation, &ev.Units, &ev.Cost, &ev.Saved,
			&ev.DebateID, &ev.Agent, &ev.UserID, &ev.CacheHit, &created); err != nil {
			return nil, fmt.Errorf("scan cost event: %w", err)
		}
		ev.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UserCosts aggregates one user's events from since until now. Days are UTC.
func (l *SQLiteLedger) UserCosts(ctx context.Context, userID string, since time.Time) (models.UserCosts, error) {
	uc := models.UserCosts{UserID: userID, Since: since, ByDay: make(map[string]float64)}
	if userID == "" {
		return uc, nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT created_at / 86400000000000 AS day, COUNT(*), COALESCE(SUM(cost), 0)
		 FROM cost_events WHERE user_id = ? AND created_at >= ?
		 GROUP BY day`,
		userID, since.UnixNano(),
	)
	if err != nil {
		return uc, fmt.Errorf("user costs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day, count int64
		var cost float64
		if err := rows.Scan(&day, &count, &cost); err != nil {
			return uc, fmt.Errorf("scan user costs: %w", err)
		}
		uc.Events += count
		uc.Total += cost
		uc.ByDay[time.Unix(day*86400, 0).UTC().Format(time.DateOnly)] += cost
	}
	if err := rows.Err(); err != nil {
		return uc, err
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT debate_id) FROM cost_events
		 WHERE user_id = ? AND created_at >= ? AND debate_id != ''`,
		userID, since.UnixNano(),
	).Scan(&uc.Debates)
	if err != nil {
		return uc, fmt.Errorf("user debate count: %w", err)
	}
	return uc, nil
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// DayBounds returns the UTC day containing t as [start, end).
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
