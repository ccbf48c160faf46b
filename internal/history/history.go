// Package history records served predictions in Postgres.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Skufu/symptomcheck/internal/logging"
	"github.com/Skufu/symptomcheck/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS prediction_log (
	id          UUID PRIMARY KEY,
	symptoms    TEXT[] NOT NULL,
	disease     TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	generation  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	insertEntry = `INSERT INTO prediction_log (id, symptoms, disease, confidence, generation, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	selectRecent = `SELECT id::text, symptoms, disease, confidence, generation, created_at
FROM prediction_log ORDER BY created_at DESC LIMIT $1`

	// MaxRecent caps Recent's limit.
	MaxRecent = 200
)

// Entry is one recorded prediction: the input and the top-ranked disease.
type Entry struct {
	ID         string    `json:"id"`
	Symptoms   []string  `json:"symptoms"`
	Disease    string    `json:"disease"`
	Confidence float64   `json:"confidence"`
	Generation string    `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

// DB is the subset of pgxpool.Pool the log needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Log writes prediction entries through a circuit breaker so a failing
// database degrades history without slowing predictions.
type Log struct {
	db      DB
	breaker *gobreaker.CircuitBreaker[any]
	now     func() time.Time
}

// Connect opens a pool, pings it and returns it. The caller closes it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// New wraps db. Call Migrate before the first Record.
func New(db DB) *Log {
	log := logging.With("history")
	settings := gobreaker.Settings{
		Name:        "prediction-history",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("history circuit breaker state changed")
		},
	}
	return &Log{
		db:      db,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		now:     time.Now,
	}
}

// Migrate creates the prediction_log table if it does not exist.
func (l *Log) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate prediction_log: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (l *Log) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}

// Record stores one prediction and returns its id.
func (l *Log) Record(ctx context.Context, symptoms []string, disease string, confidence float64, generation string) (string, error) {
	id := uuid.NewString()
	_, err := l.breaker.Execute(func() (any, error) {
		return l.db.Exec(ctx, insertEntry, id, symptoms, disease, confidence, generation, l.now().UTC())
	})
	if err != nil {
		metrics.HistoryWriteErrors.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("history unavailable: %w", err)
		}
		return "", fmt.Errorf("record prediction: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	rows, err := l.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent predictions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Symptoms, &e.Disease, &e.Confidence, &e.Generation, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return entries, nil
}

// BreakerState reports the circuit breaker state for readiness output.
func (l *Log) BreakerState() string {
	return l.breaker.State().String()
}
