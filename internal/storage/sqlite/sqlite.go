package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
	"github.com/ptmflow/ptmflow/internal/storage/sqlite/migrations"
)

// OrderRepositoryConfig is the configuration for the SQLite order repository.
type OrderRepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *OrderRepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// OrderRepository is a SQLite implementation of storage.OrderRepository.
type OrderRepository struct {
	db     *sql.DB
	logger log.Logger
}

// NewOrderRepository creates a new SQLite order repository and runs migrations.
func NewOrderRepository(ctx context.Context, cfg OrderRepositoryConfig) (*OrderRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &OrderRepository{db: db, logger: cfg.Logger}, nil
}

// DB returns the underlying database connection so other repositories can
// share it.
func (r *OrderRepository) DB() *sql.DB { return r.db }

// Close closes the database connection.
func (r *OrderRepository) Close() error { return r.db.Close() }

// CreateOrder creates a new order in the repository.
func (r *OrderRepository) CreateOrder(ctx context.Context, o model.Order) error {
	resultFiles, err := marshalResultFiles(o.ResultFiles)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, code, project_name, status, current_stage,
			progress_pct, stage_detail, error_message, result_files,
			created_at, started_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		o.ID,
		o.Code,
		o.ProjectName,
		o.Status,
		stageToNull(o.CurrentStage),
		o.ProgressPct,
		o.StageDetail,
		o.ErrorMessage,
		resultFiles,
		o.CreatedAt.Unix(),
		timeToNull(o.StartedAt),
		timeToNull(o.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: orders.") {
			return fmt.Errorf("order already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert order: %w", err)
	}

	r.logger.Debugf("Created order in repository: %s", o.ID)
	return nil
}

const orderColumns = `
	id, code, project_name, status, current_stage,
	progress_pct, stage_detail, error_message, result_files,
	created_at, started_at, completed_at
`

// GetOrder retrieves an order by ID.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query order: %w", err)
	}

	return order, nil
}

// GetOrderByCode retrieves an order by its human-readable code.
func (r *OrderRepository) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE code = ?`

	order, err := r.scanOne(ctx, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order with code %s: %w", code, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query order: %w", err)
	}

	return order, nil
}

// ListOrders returns orders, newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, q storage.ListOrdersQuery) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if q.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *q.Status)
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return orders, nil
}

// UpdateOrder updates an existing order.
func (r *OrderRepository) UpdateOrder(ctx context.Context, o model.Order) error {
	resultFiles, err := marshalResultFiles(o.ResultFiles)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders
		SET
			code = ?,
			project_name = ?,
			status = ?,
			current_stage = ?,
			progress_pct = ?,
			stage_detail = ?,
			error_message = ?,
			result_files = ?,
			started_at = ?,
			completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		o.Code,
		o.ProjectName,
		o.Status,
		stageToNull(o.CurrentStage),
		o.ProgressPct,
		o.StageDetail,
		o.ErrorMessage,
		resultFiles,
		timeToNull(o.StartedAt),
		timeToNull(o.CompletedAt),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("order %s: %w", o.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated order in repository: %s", o.ID)
	return nil
}

// DeleteOrder deletes an order and its events (cascade).
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted order from repository: %s", id)
	return nil
}

func (r *OrderRepository) scanOne(ctx context.Context, query string, arg any) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	order, err := r.scanRow(row)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *OrderRepository) scanRow(s scanner) (model.Order, error) {
	var o model.Order
	var currentStage sql.NullString
	var resultFiles string
	var createdAt, startedAt, completedAt sql.NullInt64

	err := s.Scan(
		&o.ID,
		&o.Code,
		&o.ProjectName,
		&o.Status,
		&currentStage,
		&o.ProgressPct,
		&o.StageDetail,
		&o.ErrorMessage,
		&resultFiles,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return model.Order{}, err
	}

	if currentStage.Valid {
		stage := model.Stage(currentStage.String)
		o.CurrentStage = &stage
	}

	if resultFiles != "" {
		if err := json.Unmarshal([]byte(resultFiles), &o.ResultFiles); err != nil {
			return model.Order{}, fmt.Errorf("could not unmarshal result files: %w", err)
		}
	}

	if !createdAt.Valid {
		return model.Order{}, fmt.Errorf("created_at is required")
	}
	o.CreatedAt = timeFromUnix(createdAt.Int64)

	if startedAt.Valid {
		t := timeFromUnix(startedAt.Int64)
		o.StartedAt = &t
	}
	if completedAt.Valid {
		t := timeFromUnix(completedAt.Int64)
		o.CompletedAt = &t
	}

	return o, nil
}

func marshalResultFiles(files map[string]string) (string, error) {
	if files == nil {
		files = map[string]string{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("could not marshal result files: %w", err)
	}
	return string(data), nil
}

func stageToNull(s *model.Stage) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func timeToNull(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
