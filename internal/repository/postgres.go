// Package repository содержит хранилища листа комплектации, этикеток и отчётов.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит лист комплектации в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const selectItems = `SELECT order_id, item_id, title, ean, quantity, unit_price, customer, location,
	fetched_at, picked, picked_at, package_type, tracking_number, label_file, label_created_at,
	shipped, shipped_at
	FROM picking_items
	ORDER BY position`

// LoadItems возвращает сохранённый лист комплектации в исходном порядке.
func (r *PostgresRepository) LoadItems(ctx context.Context) ([]model.PickingItem, error) {
	var items []model.PickingItem

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, selectItems)
		if err != nil {
			return fmt.Errorf("select picking items: %w", err)
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			var (
				it          model.PickingItem
				priceCents  int64
				packageType string
			)
			if err := rows.Scan(
				&it.OrderID, &it.ItemID, &it.Title, &it.EAN, &it.Quantity, &priceCents, &it.Customer, &it.Location,
				&it.FetchedAt, &it.Picked, &it.PickedAt, &packageType, &it.TrackingNumber, &it.LabelFile, &it.LabelCreatedAt,
				&it.Shipped, &it.ShippedAt,
			); err != nil {
				return fmt.Errorf("scan picking item: %w", err)
			}
			it.UnitPrice = decimal.New(priceCents, -2)
			it.PackageType = model.PackageType(packageType)
			items = append(items, it)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

const upsertItem = `INSERT INTO picking_items (
	order_id, item_id, position, title, ean, quantity, unit_price, customer, location,
	fetched_at, picked, picked_at, package_type, tracking_number, label_file, label_created_at,
	shipped, shipped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (order_id, item_id) DO UPDATE SET
	position = EXCLUDED.position,
	title = EXCLUDED.title,
	ean = EXCLUDED.ean,
	quantity = EXCLUDED.quantity,
	unit_price = EXCLUDED.unit_price,
	customer = EXCLUDED.customer,
	location = EXCLUDED.location,
	fetched_at = EXCLUDED.fetched_at,
	picked = EXCLUDED.picked,
	picked_at = EXCLUDED.picked_at,
	package_type = EXCLUDED.package_type,
	tracking_number = EXCLUDED.tracking_number,
	label_file = EXCLUDED.label_file,
	label_created_at = EXCLUDED.label_created_at,
	shipped = EXCLUDED.shipped,
	shipped_at = EXCLUDED.shipped_at`

// SaveItems заменяет сохранённый лист комплектации переданным. Позиции,
// отсутствующие в items, удаляются в той же транзакции.
func (r *PostgresRepository) SaveItems(ctx context.Context, items []model.PickingItem) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `CREATE TEMP TABLE keep_keys (order_id TEXT, item_id TEXT) ON COMMIT DROP`); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range items {
			batch.Queue(upsertItem,
				it.OrderID, it.ItemID, i, it.Title, it.EAN, it.Quantity, it.UnitPrice.Shift(2).IntPart(), it.Customer, it.Location,
				it.FetchedAt, it.Picked, it.PickedAt, string(it.PackageType), it.TrackingNumber, it.LabelFile, it.LabelCreatedAt,
				it.Shipped, it.ShippedAt,
			)
			batch.Queue(`INSERT INTO keep_keys (order_id, item_id) VALUES ($1, $2)`, it.OrderID, it.ItemID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert picking items: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM picking_items p
			 WHERE NOT EXISTS (SELECT 1 FROM keep_keys k WHERE k.order_id = p.order_id AND k.item_id = p.item_id)`,
		); err != nil {
			return fmt.Errorf("delete stale picking items: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
