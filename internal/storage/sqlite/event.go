package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
)

// EventRepositoryConfig is the configuration for the SQLite event repository.
type EventRepositoryConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *EventRepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.EventRepository"})
	return nil
}

// EventRepository is a SQLite implementation of storage.EventRepository.
// It only inserts and reads, the order_events table is append-only.
type EventRepository struct {
	db     *sql.DB
	logger log.Logger
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(cfg EventRepositoryConfig) (*EventRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &EventRepository{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// AppendEvent appends a progress event to the order's log.
func (r *EventRepository) AppendEvent(ctx context.Context, e model.ProgressEvent) error {
	query := `
		INSERT INTO order_events (id, order_id, stage, step, status, progress_pct, message, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.ID,
		e.OrderID,
		e.Stage,
		e.Step,
		e.Status,
		e.ProgressPct,
		e.Message,
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("could not insert event: %w", err)
	}

	r.logger.Debugf("Appended event for order %s: %s/%s %s", e.OrderID, e.Stage, e.Step, e.Status)
	return nil
}

// ListEvents returns the order's events ordered by append time, oldest first.
func (r *EventRepository) ListEvents(ctx context.Context, q storage.ListEventsQuery) ([]model.ProgressEvent, error) {
	if q.OrderID == "" {
		return nil, fmt.Errorf("order id is required: %w", model.ErrNotValid)
	}

	query := `
		SELECT id, order_id, stage, step, status, progress_pct, message, created_at_ms
		FROM order_events
		WHERE order_id = ?
	`
	args := []any{q.OrderID}
	if q.Stage != nil {
		query += ` AND stage = ?`
		args = append(args, *q.Stage)
	}
	query += ` ORDER BY created_at_ms ASC, id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query events: %w", err)
	}
	defer rows.Close()

	var events []model.ProgressEvent
	for rows.Next() {
		var e model.ProgressEvent
		var pct sql.NullFloat64
		var createdAtMs int64

		err := rows.Scan(&e.ID, &e.OrderID, &e.Stage, &e.Step, &e.Status, &pct, &e.Message, &createdAtMs)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}

		if pct.Valid {
			v := pct.Float64
			e.ProgressPct = &v
		}
		e.CreatedAt = time.UnixMilli(createdAtMs).UTC()

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// LastEventAt returns the timestamp of the most recent event for an order.
func (r *EventRepository) LastEventAt(ctx context.Context, orderID string) (*time.Time, error) {
	query := `SELECT created_at_ms FROM order_events WHERE order_id = ? ORDER BY created_at_ms DESC LIMIT 1`

	var createdAtMs int64
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(&createdAtMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query last event: %w", err)
	}

	t := time.UnixMilli(createdAtMs).UTC()
	return &t, nil
}
