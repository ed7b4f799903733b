package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the invoice ledger in PostgreSQL. Finalized
// invoices are immutable here, not just in the service: totals, lines
// and the finalize latch are all guarded with is_finalized=FALSE in the
// UPDATE predicates, so a write that slips past the service still
// cannot touch a finalized row. Only paid_amount, status and notes
// remain writable after the latch.
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

type txRepository struct {
	tx pgx.Tx
}

const invoiceColumns = `id, branch_id, invoice_number, job_id, customer_name, customer_mobile, customer_email,
customer_address, customer_gstin, customer_state_code, invoice_date, due_date, is_interstate,
subtotal, cgst_total, sgst_total, igst_total, discount_amount, total_tax, total_amount,
status, paid_amount, is_finalized, finalized_at, finalized_by_id, notes, created_by_id, created_at, updated_at`

const lineItemColumns = `id, invoice_id, item_type, description, hsn_sac_code, quantity, unit, unit_price, amount,
gst_rate, cgst_rate, cgst_amount, sgst_rate, sgst_amount, igst_rate, igst_amount,
discount_percent, item_id, part_usage_id, created_at`

// WithTx executes the callback inside a transaction with a bounded
// lock_timeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("billing repository not initialised")
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

// GetInvoice loads one invoice without locking.
func (r *Repository) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (Invoice, error) {
	if r == nil {
		return Invoice{}, errors.New("billing repository not initialised")
	}
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, invoiceID))
}

// ListLineItems returns an invoice's lines, oldest first.
func (r *Repository) ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	return listLineItems(ctx, r.pool, invoiceID, "")
}

// ListPayments returns an invoice's payments, oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, payment_method, reference, notes, received_by_id, created_at
FROM payments WHERE invoice_id=$1 ORDER BY created_at ASC, id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.Notes, &p.ReceivedByID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID uuid.UUID) (Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, invoiceID))
}

func (t *txRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
		inv.ID, inv.BranchID, inv.InvoiceNumber, inv.JobID, inv.CustomerName, inv.CustomerMobile, inv.CustomerEmail,
		inv.CustomerAddress, inv.CustomerGSTIN, inv.CustomerStateCode, inv.InvoiceDate, inv.DueDate, inv.IsInterstate,
		inv.Subtotal, inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal, inv.DiscountAmount, inv.TotalTax, inv.TotalAmount,
		inv.Status, inv.PaidAmount, inv.IsFinalized, inv.FinalizedAt, nullableUUID(inv.FinalizedByID), inv.Notes, inv.CreatedByID, inv.CreatedAt, inv.UpdatedAt)
	return err
}

// UpdateInvoiceTotals rewrites the computed amounts. The is_finalized
// predicate is the storage invariant: a finalized row never matches.
func (t *txRepository) UpdateInvoiceTotals(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET subtotal=$2, cgst_total=$3, sgst_total=$4, igst_total=$5,
discount_amount=$6, total_tax=$7, total_amount=$8, status=$9, updated_at=$10
WHERE id=$1 AND is_finalized=FALSE`,
		inv.ID, inv.Subtotal, inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal,
		inv.DiscountAmount, inv.TotalTax, inv.TotalAmount, inv.Status, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return t.invoiceWriteRejected(ctx, inv.ID)
	}
	return nil
}

// MarkInvoiceFinalized flips the latch exactly once.
func (t *txRepository) MarkInvoiceFinalized(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET subtotal=$2, cgst_total=$3, sgst_total=$4, igst_total=$5,
discount_amount=$6, total_tax=$7, total_amount=$8, status=$9,
is_finalized=TRUE, finalized_at=$10, finalized_by_id=$11, updated_at=$12
WHERE id=$1 AND is_finalized=FALSE`,
		inv.ID, inv.Subtotal, inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal,
		inv.DiscountAmount, inv.TotalTax, inv.TotalAmount, inv.Status,
		inv.FinalizedAt, nullableUUID(inv.FinalizedByID), inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return t.invoiceWriteRejected(ctx, inv.ID)
	}
	return nil
}

// UpdateInvoicePayment touches only the fields that stay writable after
// finalization.
func (t *txRepository) UpdateInvoicePayment(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$2, status=$3, updated_at=$4 WHERE id=$1`,
		inv.ID, inv.PaidAmount, inv.Status, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepository) UpdateInvoiceCancelled(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET status=$2, notes=$3, updated_at=$4 WHERE id=$1`,
		inv.ID, inv.Status, inv.Notes, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepository) ListLineItemsForUpdate(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	return listLineItems(ctx, t.tx, invoiceID, " FOR UPDATE")
}

// InsertLineItem only lands on a draft; the subquery keeps a line from
// racing a concurrent finalize.
func (t *txRepository) InsertLineItem(ctx context.Context, line LineItem) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO invoice_line_items (`+lineItemColumns+`)
SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
WHERE EXISTS (SELECT 1 FROM invoices WHERE id=$2 AND is_finalized=FALSE)`,
		line.ID, line.InvoiceID, line.Type, line.Description, line.HSNSACCode, line.Quantity, line.Unit, line.UnitPrice, line.Amount,
		line.GSTRate, line.CGSTRate, line.CGSTAmount, line.SGSTRate, line.SGSTAmount, line.IGSTRate, line.IGSTAmount,
		line.DiscountPercent, nullableUUID(line.ItemID), nullableUUID(line.PartUsageID), line.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return t.invoiceWriteRejected(ctx, line.InvoiceID)
	}
	return nil
}

func (t *txRepository) DeleteLineItem(ctx context.Context, invoiceID, lineItemID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoice_line_items
WHERE id=$2 AND invoice_id=$1
AND EXISTS (SELECT 1 FROM invoices WHERE id=$1 AND is_finalized=FALSE)`, invoiceID, lineItemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if err := t.invoiceWriteRejected(ctx, invoiceID); err != nil {
			return err
		}
		return ErrLineItemNotFound
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payments (id, invoice_id, amount, payment_method, reference, notes, received_by_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.Notes, p.ReceivedByID, p.CreatedAt)
	return err
}

func (t *txRepository) InsertCreditNote(ctx context.Context, cn CreditNote) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO credit_notes (id, branch_id, credit_note_number, invoice_id, amount, cgst_amount, sgst_amount, igst_amount, total_amount, reason, created_by_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		cn.ID, cn.BranchID, cn.CreditNoteNumber, cn.InvoiceID, cn.Amount, cn.CGSTAmount, cn.SGSTAmount, cn.IGSTAmount, cn.TotalAmount, cn.Reason, cn.CreatedByID, cn.CreatedAt)
	return err
}

// invoiceWriteRejected maps a zero-row write to the right error: missing
// invoice or finalized invoice.
func (t *txRepository) invoiceWriteRejected(ctx context.Context, invoiceID uuid.UUID) error {
	var number string
	var finalized bool
	err := t.tx.QueryRow(ctx, `SELECT invoice_number, is_finalized FROM invoices WHERE id=$1`, invoiceID).Scan(&number, &finalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}
	if finalized {
		return &FinalizedError{InvoiceNumber: number}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listLineItems(ctx context.Context, q querier, invoiceID uuid.UUID, suffix string) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT `+lineItemColumns+` FROM invoice_line_items WHERE invoice_id=$1 ORDER BY created_at ASC, id ASC`+suffix, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var (
			line      LineItem
			itemID    uuid.NullUUID
			partUsage uuid.NullUUID
		)
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Type, &line.Description, &line.HSNSACCode, &line.Quantity, &line.Unit, &line.UnitPrice, &line.Amount,
			&line.GSTRate, &line.CGSTRate, &line.CGSTAmount, &line.SGSTRate, &line.SGSTAmount, &line.IGSTRate, &line.IGSTAmount,
			&line.DiscountPercent, &itemID, &partUsage, &line.CreatedAt); err != nil {
			return nil, err
		}
		if itemID.Valid {
			line.ItemID = itemID.UUID
		}
		if partUsage.Valid {
			line.PartUsageID = partUsage.UUID
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv         Invoice
		finalizedBy uuid.NullUUID
	)
	err := row.Scan(&inv.ID, &inv.BranchID, &inv.InvoiceNumber, &inv.JobID, &inv.CustomerName, &inv.CustomerMobile, &inv.CustomerEmail,
		&inv.CustomerAddress, &inv.CustomerGSTIN, &inv.CustomerStateCode, &inv.InvoiceDate, &inv.DueDate, &inv.IsInterstate,
		&inv.Subtotal, &inv.CGSTTotal, &inv.SGSTTotal, &inv.IGSTTotal, &inv.DiscountAmount, &inv.TotalTax, &inv.TotalAmount,
		&inv.Status, &inv.PaidAmount, &inv.IsFinalized, &inv.FinalizedAt, &finalizedBy, &inv.Notes, &inv.CreatedByID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	if finalizedBy.Valid {
		inv.FinalizedByID = finalizedBy.UUID
	}
	return inv, nil
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
