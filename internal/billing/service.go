package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixpoint-hq/fixpoint/internal/audit"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/jobcard"
	"github.com/fixpoint-hq/fixpoint/internal/sequence"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
	"github.com/fixpoint-hq/fixpoint/internal/tax"
)

// SAC code for repair services on auto-added SERVICE lines.
const repairServiceSAC = "998719"

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (Invoice, error)
	ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
}

// TxRepository is the transactional slice of the repository. Invoice
// updates are split by concern so the repository can reject writes to
// finalized invoices at the storage layer.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, invoiceID uuid.UUID) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoiceTotals(ctx context.Context, inv Invoice) error
	MarkInvoiceFinalized(ctx context.Context, inv Invoice) error
	UpdateInvoicePayment(ctx context.Context, inv Invoice) error
	UpdateInvoiceCancelled(ctx context.Context, inv Invoice) error
	ListLineItemsForUpdate(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error)
	InsertLineItem(ctx context.Context, line LineItem) error
	DeleteLineItem(ctx context.Context, invoiceID, lineItemID uuid.UUID) error
	InsertPayment(ctx context.Context, p Payment) error
	InsertCreditNote(ctx context.Context, cn CreditNote) error
}

// NumberSource issues branch-scoped document numbers.
type NumberSource interface {
	NextNumber(ctx context.Context, branchID uuid.UUID, kind sequence.Kind) (string, error)
}

// JobPort is the slice of the job lifecycle an invoice build needs.
type JobPort interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (jobcard.JobCard, error)
}

// PartsPort lists the parts consumed by a job.
type PartsPort interface {
	ListPartUsages(ctx context.Context, jobID uuid.UUID) ([]inventory.PartUsage, error)
}

// CustomerDirectory resolves the customer fields snapshotted onto an
// invoice. Customer CRUD itself lives outside this core.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, customerID uuid.UUID) (CustomerInfo, error)
}

// BranchDirectory resolves branch billing facts.
type BranchDirectory interface {
	GetBranch(ctx context.Context, branchID uuid.UUID) (BranchInfo, error)
}

// AuditPort abstracts the audit trail sink.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service owns the invoice ledger. Every mutation locks the invoice row;
// totals are recomputed inside the same transaction as the line change
// that triggered them.
type Service struct {
	repo      RepositoryPort
	numbers   NumberSource
	jobs      JobPort
	parts     PartsPort
	customers CustomerDirectory
	branches  BranchDirectory
	audit     AuditPort
	events    EventHandler
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. Audit and events are optional.
func NewService(repo RepositoryPort, numbers NumberSource, jobs JobPort, parts PartsPort, customers CustomerDirectory, branches BranchDirectory, auditSink AuditPort, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		numbers:   numbers,
		jobs:      jobs,
		parts:     parts,
		customers: customers,
		branches:  branches,
		audit:     auditSink,
		events:    events,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateFromJob builds a draft invoice for a job: customer snapshot,
// interstate flag from the two state codes, one PART line per part usage
// and one SERVICE line when the job carries an estimated cost.
func (s *Service) CreateFromJob(ctx context.Context, input CreateFromJobInput) (Invoice, error) {
	if err := s.validate.Struct(input); err != nil {
		return Invoice{}, shared.NewValidationError("create_from_job", err.Error())
	}

	job, err := s.jobs.GetJob(ctx, input.JobID)
	if err != nil {
		return Invoice{}, fmt.Errorf("load job: %w", err)
	}
	customer, err := s.customers.GetCustomer(ctx, job.CustomerID)
	if err != nil {
		return Invoice{}, fmt.Errorf("load customer: %w", err)
	}
	branch, err := s.branches.GetBranch(ctx, job.BranchID)
	if err != nil {
		return Invoice{}, fmt.Errorf("load branch: %w", err)
	}

	number, err := s.numbers.NextNumber(ctx, job.BranchID, sequence.KindInvoice)
	if err != nil {
		return Invoice{}, fmt.Errorf("issue invoice number: %w", err)
	}

	now := s.now()
	inv := Invoice{
		ID:                uuid.New(),
		BranchID:          job.BranchID,
		InvoiceNumber:     number,
		JobID:             job.ID,
		CustomerName:      customer.Name,
		CustomerMobile:    customer.Mobile,
		CustomerEmail:     customer.Email,
		CustomerAddress:   customer.Address,
		CustomerGSTIN:     customer.GSTIN,
		CustomerStateCode: customer.StateCode,
		InvoiceDate:       now,
		DueDate:           input.DueDate,
		IsInterstate:      tax.IsInterstateSupply(branch.StateCode, customer.StateCode),
		Status:            StatusDraft,
		CreatedByID:       input.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	usages, err := s.parts.ListPartUsages(ctx, job.ID)
	if err != nil {
		return Invoice{}, fmt.Errorf("load part usages: %w", err)
	}
	var lines []LineItem
	for _, usage := range usages {
		line := LineItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Type:        LinePart,
			Description: usage.ItemName,
			HSNSACCode:  usage.HSNCode,
			Quantity:    usage.Quantity,
			Unit:        usage.Unit,
			UnitPrice:   usage.UnitPrice,
			GSTRate:     usage.GSTRate,
			ItemID:      usage.ItemID,
			PartUsageID: usage.ID,
			CreatedAt:   now,
		}
		computeLine(&line, inv.IsInterstate)
		lines = append(lines, line)
	}
	if job.EstimatedCost.Valid && job.EstimatedCost.Decimal.IsPositive() {
		line := LineItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Type:        LineService,
			Description: "Service/Repair Charge",
			HSNSACCode:  repairServiceSAC,
			Quantity:    1,
			Unit:        "NOS",
			UnitPrice:   job.EstimatedCost.Decimal,
			GSTRate:     branch.DefaultGSTRate,
			CreatedAt:   now,
		}
		computeLine(&line, inv.IsInterstate)
		lines = append(lines, line)
	}
	recalculateTotals(&inv, lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertLineItem(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Invoice{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ActorID, "billing:create_invoice", inv.ID, nil, map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"job_id":         job.ID.String(),
		"total_amount":   inv.TotalAmount.StringFixed(2),
		"is_interstate":  inv.IsInterstate,
	}, nil)
	return inv, nil
}

// AddLineItem appends a line to a draft invoice and recomputes totals in
// the same transaction.
func (s *Service) AddLineItem(ctx context.Context, input AddLineItemInput) (LineItem, error) {
	if err := s.validate.Struct(input); err != nil {
		return LineItem{}, shared.NewValidationError("add_line_item", err.Error())
	}
	if input.UnitPrice.IsNegative() {
		return LineItem{}, shared.NewValidationError("unit_price", "must not be negative")
	}
	if input.DiscountPercent.IsNegative() || input.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return LineItem{}, shared.NewValidationError("discount_percent", "must be between 0 and 100")
	}

	line := LineItem{
		ID:              uuid.New(),
		InvoiceID:       input.InvoiceID,
		Type:            input.Type,
		Description:     input.Description,
		HSNSACCode:      input.HSNSACCode,
		Quantity:        input.Quantity,
		Unit:            input.Unit,
		UnitPrice:       input.UnitPrice,
		GSTRate:         input.GSTRate,
		DiscountPercent: input.DiscountPercent,
		CreatedAt:       s.now(),
	}
	if line.Unit == "" {
		line.Unit = "NOS"
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = s.lockDraft(ctx, tx, input.InvoiceID)
		if err != nil {
			return err
		}
		computeLine(&line, inv.IsInterstate)
		if err := tx.InsertLineItem(ctx, line); err != nil {
			return err
		}
		return s.recalculateAndStore(ctx, tx, &inv)
	})
	if err != nil {
		return LineItem{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ActorID, "billing:add_line_item", inv.ID, nil, map[string]any{
		"line_item_id": line.ID.String(),
		"description":  line.Description,
		"amount":       line.Amount.StringFixed(2),
		"total_amount": inv.TotalAmount.StringFixed(2),
	}, nil)
	return line, nil
}

// RemoveLineItem removes a line from a draft invoice and recomputes
// totals in the same transaction.
func (s *Service) RemoveLineItem(ctx context.Context, invoiceID, lineItemID, actorID uuid.UUID) error {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = s.lockDraft(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := tx.DeleteLineItem(ctx, invoiceID, lineItemID); err != nil {
			return err
		}
		return s.recalculateAndStore(ctx, tx, &inv)
	})
	if err != nil {
		return shared.MapLockError(err)
	}

	s.recordAudit(ctx, actorID, "billing:remove_line_item", inv.ID, nil, map[string]any{
		"line_item_id": lineItemID.String(),
		"total_amount": inv.TotalAmount.StringFixed(2),
	}, nil)
	return nil
}

// SetDiscount applies a flat invoice-level discount to a draft and
// recomputes totals in the same transaction. It comes off the total after
// tax; per-line discounts work on DiscountPercent instead.
func (s *Service) SetDiscount(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, actorID uuid.UUID) (Invoice, error) {
	if amount.IsNegative() {
		return Invoice{}, shared.NewValidationError("discount_amount", "must not be negative")
	}
	var (
		inv  Invoice
		prev decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = s.lockDraft(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		prev = inv.DiscountAmount
		inv.DiscountAmount = amount
		if err := s.recalculateAndStore(ctx, tx, &inv); err != nil {
			return err
		}
		if inv.TotalAmount.IsNegative() {
			return shared.NewValidationError("discount_amount", "exceeds invoice total")
		}
		return nil
	})
	if err != nil {
		return Invoice{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, actorID, "billing:set_discount", inv.ID,
		map[string]any{"discount_amount": prev.StringFixed(2)},
		map[string]any{"discount_amount": amount.StringFixed(2), "total_amount": inv.TotalAmount.StringFixed(2)}, nil)
	return inv, nil
}

// Finalize latches the invoice. It recalculates once more, flips the
// latch, and re-derives the payment status so a prepaid invoice lands on
// PARTIAL or PAID rather than PENDING.
func (s *Service) Finalize(ctx context.Context, invoiceID, actorID uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsFinalized {
			return &FinalizedError{InvoiceNumber: inv.InvoiceNumber}
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		lines, err := tx.ListLineItemsForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrNoLineItems
		}
		recalculateTotals(&inv, lines)

		now := s.now()
		inv.IsFinalized = true
		inv.FinalizedAt = &now
		inv.FinalizedByID = actorID
		inv.Status = StatusPending
		inv.DerivePaymentStatus()
		inv.UpdatedAt = now
		return tx.MarkInvoiceFinalized(ctx, inv)
	})
	if err != nil {
		return Invoice{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, actorID, "billing:finalize", inv.ID,
		map[string]any{"is_finalized": false},
		map[string]any{"is_finalized": true, "status": string(inv.Status), "total_amount": inv.TotalAmount.StringFixed(2)}, nil)
	if s.events != nil {
		evt := InvoiceFinalizedEvent{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			BranchID:      inv.BranchID,
			JobID:         inv.JobID,
			TotalAmount:   inv.TotalAmount,
			At:            s.now(),
		}
		if err := s.events.HandleInvoiceFinalized(ctx, evt); err != nil {
			s.logger.Warn("invoice finalized event handler failed", slog.Any("error", err))
		}
	}
	return inv, nil
}

// RecordPayment records one payment against a finalized invoice, bounded
// by the balance due, and re-derives the status in the same transaction.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Payment, error) {
	if err := s.validate.Struct(input); err != nil {
		return Payment{}, shared.NewValidationError("record_payment", err.Error())
	}
	if !input.Amount.IsPositive() {
		return Payment{}, shared.NewValidationError("amount", "must be positive")
	}
	if !input.Method.IsValid() {
		return Payment{}, shared.NewValidationError("method", fmt.Sprintf("unknown payment method %q", input.Method))
	}

	payment := Payment{
		ID:           uuid.New(),
		InvoiceID:    input.InvoiceID,
		Amount:       input.Amount,
		Method:       input.Method,
		Reference:    input.Reference,
		Notes:        input.Notes,
		ReceivedByID: input.ActorID,
		CreatedAt:    s.now(),
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		if !inv.IsFinalized {
			return ErrNotFinalized
		}
		if input.Amount.GreaterThan(inv.BalanceDue()) {
			return &PaymentExceedsBalanceError{
				InvoiceNumber: inv.InvoiceNumber,
				Requested:     input.Amount,
				BalanceDue:    inv.BalanceDue(),
			}
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		inv.PaidAmount = inv.PaidAmount.Add(input.Amount)
		inv.DerivePaymentStatus()
		inv.UpdatedAt = s.now()
		return tx.UpdateInvoicePayment(ctx, inv)
	})
	if err != nil {
		return Payment{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ActorID, "billing:record_payment", inv.ID, nil, map[string]any{
		"payment_id":  payment.ID.String(),
		"amount":      payment.Amount.StringFixed(2),
		"method":      string(payment.Method),
		"new_balance": inv.BalanceDue().StringFixed(2),
		"status":      string(inv.Status),
	}, nil)
	if s.events != nil {
		evt := PaymentRecordedEvent{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			PaymentID:     payment.ID,
			Amount:        payment.Amount,
			Method:        payment.Method,
			BalanceDue:    inv.BalanceDue(),
			Status:        inv.Status,
			At:            payment.CreatedAt,
		}
		if err := s.events.HandlePaymentRecorded(ctx, evt); err != nil {
			s.logger.Warn("payment recorded event handler failed", slog.Any("error", err))
		}
	}
	return payment, nil
}

// Cancel voids an unpaid invoice. An invoice with payments must be
// reversed through a credit note instead.
func (s *Service) Cancel(ctx context.Context, invoiceID, actorID uuid.UUID, reason string) error {
	if reason == "" {
		return shared.NewValidationError("reason", "required")
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		if inv.PaidAmount.IsPositive() {
			return ErrCancelPaidInvoice
		}
		inv.Status = StatusCancelled
		if inv.Notes != "" {
			inv.Notes += "\n"
		}
		inv.Notes += "Cancelled: " + reason
		inv.UpdatedAt = s.now()
		return tx.UpdateInvoiceCancelled(ctx, inv)
	})
	if err != nil {
		return shared.MapLockError(err)
	}

	s.recordAudit(ctx, actorID, "billing:cancel", inv.ID,
		map[string]any{"status": string(StatusDraft)},
		map[string]any{"status": string(StatusCancelled)},
		map[string]any{"reason": reason})
	return nil
}

// CreateCreditNote issues a credit note against a paid invoice. The note
// is an independent entry; the invoice itself is untouched.
func (s *Service) CreateCreditNote(ctx context.Context, input CreateCreditNoteInput) (CreditNote, error) {
	if err := s.validate.Struct(input); err != nil {
		return CreditNote{}, shared.NewValidationError("create_credit_note", err.Error())
	}
	if !input.Amount.IsPositive() {
		return CreditNote{}, shared.NewValidationError("amount", "must be positive")
	}

	var cn CreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.PaidAmount.IsPositive() {
			return ErrNoPaymentToCredit
		}
		if input.Amount.GreaterThan(inv.PaidAmount) {
			return shared.NewValidationError("amount", fmt.Sprintf("exceeds paid amount %s", inv.PaidAmount.StringFixed(2)))
		}

		number, err := s.numbers.NextNumber(ctx, inv.BranchID, sequence.KindCreditNote)
		if err != nil {
			return fmt.Errorf("issue credit note number: %w", err)
		}
		breakdown := tax.Calculate(input.Amount, input.GSTRate, inv.IsInterstate)
		cn = CreditNote{
			ID:               uuid.New(),
			BranchID:         inv.BranchID,
			CreditNoteNumber: number,
			InvoiceID:        inv.ID,
			Amount:           input.Amount,
			CGSTAmount:       breakdown.CGSTAmount,
			SGSTAmount:       breakdown.SGSTAmount,
			IGSTAmount:       breakdown.IGSTAmount,
			TotalAmount:      breakdown.TotalAmount,
			Reason:           input.Reason,
			CreatedByID:      input.ActorID,
			CreatedAt:        s.now(),
		}
		return tx.InsertCreditNote(ctx, cn)
	})
	if err != nil {
		return CreditNote{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ActorID, "billing:create_credit_note", cn.InvoiceID, nil, map[string]any{
		"credit_note_number": cn.CreditNoteNumber,
		"total_amount":       cn.TotalAmount.StringFixed(2),
		"reason":             cn.Reason,
	}, nil)
	return cn, nil
}

// GetInvoice fetches one invoice.
func (s *Service) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

// LineItems lists an invoice's lines, oldest first.
func (s *Service) LineItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	return s.repo.ListLineItems(ctx, invoiceID)
}

// Payments lists an invoice's payments, oldest first.
func (s *Service) Payments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

func (s *Service) lockDraft(ctx context.Context, tx TxRepository, invoiceID uuid.UUID) (Invoice, error) {
	inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.IsFinalized {
		return Invoice{}, &FinalizedError{InvoiceNumber: inv.InvoiceNumber}
	}
	if inv.Status == StatusCancelled {
		return Invoice{}, ErrInvoiceCancelled
	}
	return inv, nil
}

func (s *Service) recalculateAndStore(ctx context.Context, tx TxRepository, inv *Invoice) error {
	lines, err := tx.ListLineItemsForUpdate(ctx, inv.ID)
	if err != nil {
		return err
	}
	recalculateTotals(inv, lines)
	inv.UpdatedAt = s.now()
	return tx.UpdateInvoiceTotals(ctx, *inv)
}

// computeLine derives amount and the per-line tax split. Amount is
// quantity × unit price, less the line's own discount, rounded half-up
// to 2 decimals before tax.
func computeLine(line *LineItem, interstate bool) {
	amount := decimal.NewFromInt(line.Quantity).Mul(line.UnitPrice).Round(2)
	if line.DiscountPercent.IsPositive() {
		discount := amount.Mul(line.DiscountPercent).Div(decimal.NewFromInt(100)).Round(2)
		amount = amount.Sub(discount)
	}
	line.Amount = amount

	breakdown := tax.Calculate(amount, line.GSTRate, interstate)
	line.CGSTRate = breakdown.CGSTRate
	line.CGSTAmount = breakdown.CGSTAmount
	line.SGSTRate = breakdown.SGSTRate
	line.SGSTAmount = breakdown.SGSTAmount
	line.IGSTRate = breakdown.IGSTRate
	line.IGSTAmount = breakdown.IGSTAmount
}

// recalculateTotals sums line amounts and per-line tax splits onto the
// invoice and re-derives the payment status. Tax is never recomputed at
// invoice level; each line already carries its own split.
func recalculateTotals(inv *Invoice, lines []LineItem) {
	subtotal, cgst, sgst, igst := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount)
		cgst = cgst.Add(line.CGSTAmount)
		sgst = sgst.Add(line.SGSTAmount)
		igst = igst.Add(line.IGSTAmount)
	}
	inv.Subtotal = subtotal
	inv.CGSTTotal = cgst
	inv.SGSTTotal = sgst
	inv.IGSTTotal = igst
	inv.TotalTax = cgst.Add(sgst).Add(igst)
	inv.TotalAmount = subtotal.Add(inv.TotalTax).Sub(inv.DiscountAmount).Round(2)
	inv.DerivePaymentStatus()
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, invoiceID uuid.UUID, oldValues, newValues, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "invoice",
		EntityID:  invoiceID.String(),
		OldValues: oldValues,
		NewValues: newValues,
		Details:   details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("billing audit write failed", slog.Any("error", err))
	}
}
