package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// TxRepository exposes transactional operations used by the service.
// Adjustments and part usages are insert-only; no update or delete exists.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID uuid.UUID) (Item, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, newQuantity int64) error
	InsertAdjustment(ctx context.Context, adj Adjustment) error
	InsertPartUsage(ctx context.Context, usage PartUsage) error
}

type txRepository struct {
	tx pgx.Tx
}

const itemColumns = `id, branch_id, name, sku, quantity, low_stock_threshold, cost_price, selling_price, gst_rate, hsn_code, unit, warranty_months, is_active, created_at, updated_at`

// WithTx executes the callback inside a transaction with a bounded
// lock_timeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetItem loads one item without locking.
func (r *Repository) GetItem(ctx context.Context, itemID uuid.UUID) (Item, error) {
	if r == nil {
		return Item{}, errors.New("inventory repository not initialised")
	}
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, itemID))
}

// ListAdjustments returns the newest adjustments for an item.
func (r *Repository) ListAdjustments(ctx context.Context, itemID uuid.UUID, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, adjustment_type, quantity, old_quantity, new_quantity, reason, actor_id, is_manual, created_at
FROM inventory_adjustments WHERE item_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.ItemID, &adj.Type, &adj.Quantity, &adj.OldQuantity, &adj.NewQuantity, &adj.Reason, &adj.ActorID, &adj.Manual, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// SumAdjustmentDeltas computes the signed total of all adjustments for an
// item, used by the reconciliation invariant.
func (r *Repository) SumAdjustmentDeltas(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(new_quantity - old_quantity), 0) FROM inventory_adjustments WHERE item_id=$1`, itemID).Scan(&sum)
	return sum, err
}

// ListLowStockItems returns active items at or under their threshold,
// used by the scheduled low-stock sweep.
func (r *Repository) ListLowStockItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE is_active AND quantity <= low_stock_threshold ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID uuid.UUID) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, itemID))
}

func (r *txRepository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, newQuantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET quantity=$2, updated_at=NOW() WHERE id=$1`, itemID, newQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_adjustments (id, item_id, adjustment_type, quantity, old_quantity, new_quantity, reason, actor_id, is_manual, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())`,
		adj.ID, adj.ItemID, string(adj.Type), adj.Quantity, adj.OldQuantity, adj.NewQuantity, adj.Reason, adj.ActorID, adj.Manual)
	return err
}

func (r *txRepository) InsertPartUsage(ctx context.Context, usage PartUsage) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO job_part_usages (id, job_id, item_id, quantity, unit_price, total_price, adjustment_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		usage.ID, usage.JobID, usage.ItemID, usage.Quantity, usage.UnitPrice, usage.TotalPrice, usage.AdjustmentID)
	return err
}

// ListPartUsages returns part usages for a job, oldest first, joined with
// the item fields billing needs to seed line items.
func (r *Repository) ListPartUsages(ctx context.Context, jobID uuid.UUID) ([]PartUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.job_id, u.item_id, i.name, i.hsn_code, i.unit, i.gst_rate, u.quantity, u.unit_price, u.total_price, u.adjustment_id, u.created_at
FROM job_part_usages u JOIN inventory_items i ON i.id = u.item_id
WHERE u.job_id=$1 ORDER BY u.created_at ASC, u.id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	usages := []PartUsage{}
	for rows.Next() {
		var u PartUsage
		if err := rows.Scan(&u.ID, &u.JobID, &u.ItemID, &u.ItemName, &u.HSNCode, &u.Unit, &u.GSTRate, &u.Quantity, &u.UnitPrice, &u.TotalPrice, &u.AdjustmentID, &u.CreatedAt); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.BranchID, &item.Name, &item.SKU, &item.Quantity, &item.LowStockThreshold,
		&item.CostPrice, &item.SellingPrice, &item.GSTRate, &item.HSNCode, &item.Unit, &item.WarrantyMonths,
		&item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}
