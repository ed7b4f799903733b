package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// Directory resolves customer and branch facts from the master tables.
// Invoices snapshot these at creation time, so the directory is read-only
// here.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

var _ CustomerDirectory = (*Directory)(nil)
var _ BranchDirectory = (*Directory)(nil)

// GetCustomer fetches the customer fields snapshotted onto an invoice.
func (d *Directory) GetCustomer(ctx context.Context, customerID uuid.UUID) (CustomerInfo, error) {
	const q = `SELECT name, mobile, COALESCE(email, ''), COALESCE(address, ''), COALESCE(gstin, ''), state_code
FROM customers WHERE id = $1`
	var info CustomerInfo
	err := d.pool.QueryRow(ctx, q, customerID).Scan(
		&info.Name, &info.Mobile, &info.Email, &info.Address, &info.GSTIN, &info.StateCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomerInfo{}, fmt.Errorf("customer %s: %w", customerID, shared.ErrNotFound)
	}
	if err != nil {
		return CustomerInfo{}, fmt.Errorf("billing: get customer: %w", err)
	}
	return info, nil
}

// GetBranch fetches branch billing facts.
func (d *Directory) GetBranch(ctx context.Context, branchID uuid.UUID) (BranchInfo, error) {
	const q = `SELECT state_code, default_gst_rate FROM branches WHERE id = $1 AND is_active`
	var info BranchInfo
	err := d.pool.QueryRow(ctx, q, branchID).Scan(&info.StateCode, &info.DefaultGSTRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return BranchInfo{}, fmt.Errorf("branch %s: %w", branchID, shared.ErrNotFound)
	}
	if err != nil {
		return BranchInfo{}, fmt.Errorf("billing: get branch: %w", err)
	}
	return info, nil
}
