// Package billing owns the invoice ledger: GST invoices built from job
// cards, line items with per-line tax splits, the finalization latch,
// partial payments, and credit notes.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrLineItemNotFound   = errors.New("line item not found")
	ErrCreditNoteNotFound = errors.New("credit note not found")
	ErrNoLineItems        = errors.New("invoice has no line items")
	ErrNotFinalized       = errors.New("payments are only accepted on finalized invoices")
	ErrInvoiceCancelled   = errors.New("invoice is cancelled")
	ErrCancelPaidInvoice  = errors.New("invoice has payments, issue a credit note instead of cancelling")
	ErrNoPaymentToCredit  = errors.New("credit notes require a paid invoice")
)

// InvoiceStatus is derived from paid_amount against total_amount, except
// CANCELLED which is sticky.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusPending   InvoiceStatus = "PENDING"
	StatusPartial   InvoiceStatus = "PARTIAL"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// PaymentMethod enumerates accepted payment channels.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "CASH"
	PayUPI    PaymentMethod = "UPI"
	PayCard   PaymentMethod = "CARD"
	PayNEFT   PaymentMethod = "NEFT"
	PayCheque PaymentMethod = "CHEQUE"
	PayWallet PaymentMethod = "WALLET"
	PayOther  PaymentMethod = "OTHER"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PayCash, PayUPI, PayCard, PayNEFT, PayCheque, PayWallet, PayOther:
		return true
	}
	return false
}

// LineItemType classifies a line item.
type LineItemType string

const (
	LineService LineItemType = "SERVICE"
	LinePart    LineItemType = "PART"
	LineLabour  LineItemType = "LABOUR"
	LineOther   LineItemType = "OTHER"
)

// Invoice is one GST invoice. Customer fields are a snapshot taken at
// creation; later customer edits never alter a historical invoice. Once
// IsFinalized flips, only paid_amount, status and notes may change, and
// the repository enforces that.
type Invoice struct {
	ID            uuid.UUID
	BranchID      uuid.UUID
	InvoiceNumber string
	JobID         uuid.UUID

	CustomerName      string
	CustomerMobile    string
	CustomerEmail     string
	CustomerAddress   string
	CustomerGSTIN     string
	CustomerStateCode string

	InvoiceDate time.Time
	DueDate     *time.Time

	IsInterstate bool

	Subtotal       decimal.Decimal
	CGSTTotal      decimal.Decimal
	SGSTTotal      decimal.Decimal
	IGSTTotal      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalTax       decimal.Decimal
	TotalAmount    decimal.Decimal

	Status     InvoiceStatus
	PaidAmount decimal.Decimal

	IsFinalized   bool
	FinalizedAt   *time.Time
	FinalizedByID uuid.UUID

	Notes       string
	CreatedByID uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BalanceDue is the outstanding amount.
func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// IsFullyPaid reports whether nothing is outstanding.
func (inv *Invoice) IsFullyPaid() bool {
	return inv.BalanceDue().LessThanOrEqual(decimal.Zero)
}

// DerivePaymentStatus re-derives Status from paid vs total. CANCELLED is
// never touched.
func (inv *Invoice) DerivePaymentStatus() {
	if inv.Status == StatusCancelled {
		return
	}
	switch {
	case inv.IsFullyPaid():
		inv.Status = StatusPaid
	case inv.PaidAmount.IsPositive():
		inv.Status = StatusPartial
	case inv.IsFinalized:
		inv.Status = StatusPending
	default:
		inv.Status = StatusDraft
	}
}

// LineItem is one invoice line. Amount is net of the line's own discount;
// the tax split is computed per line from the invoice's interstate flag.
type LineItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Type        LineItemType
	Description string
	HSNSACCode  string

	Quantity  int64
	Unit      string
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal

	GSTRate    decimal.Decimal
	CGSTRate   decimal.Decimal
	CGSTAmount decimal.Decimal
	SGSTRate   decimal.Decimal
	SGSTAmount decimal.Decimal
	IGSTRate   decimal.Decimal
	IGSTAmount decimal.Decimal

	DiscountPercent decimal.Decimal

	ItemID      uuid.UUID
	PartUsageID uuid.UUID

	CreatedAt time.Time
}

// Payment is one received payment against a finalized invoice.
type Payment struct {
	ID           uuid.UUID
	InvoiceID    uuid.UUID
	Amount       decimal.Decimal
	Method       PaymentMethod
	Reference    string
	Notes        string
	ReceivedByID uuid.UUID
	CreatedAt    time.Time
}

// CreditNote reverses value on a paid invoice. It is an independent
// ledger entry; it never mutates the invoice it references.
type CreditNote struct {
	ID               uuid.UUID
	BranchID         uuid.UUID
	CreditNoteNumber string
	InvoiceID        uuid.UUID
	Amount           decimal.Decimal
	CGSTAmount       decimal.Decimal
	SGSTAmount       decimal.Decimal
	IGSTAmount       decimal.Decimal
	TotalAmount      decimal.Decimal
	Reason           string
	CreatedByID      uuid.UUID
	CreatedAt        time.Time
}

// CustomerInfo is the directory view snapshotted onto an invoice.
type CustomerInfo struct {
	Name      string
	Mobile    string
	Email     string
	Address   string
	GSTIN     string
	StateCode string
}

// BranchInfo is the directory view needed to build an invoice.
type BranchInfo struct {
	StateCode      string
	DefaultGSTRate decimal.Decimal
}

// CreateFromJobInput builds a draft invoice for a job.
type CreateFromJobInput struct {
	JobID   uuid.UUID `validate:"required"`
	ActorID uuid.UUID `validate:"required"`
	DueDate *time.Time
}

// AddLineItemInput appends a line to a draft invoice.
type AddLineItemInput struct {
	InvoiceID       uuid.UUID    `validate:"required"`
	Type            LineItemType `validate:"required"`
	Description     string       `validate:"required,max=500"`
	HSNSACCode      string       `validate:"max=8"`
	Quantity        int64        `validate:"required,gt=0"`
	Unit            string       `validate:"max=20"`
	UnitPrice       decimal.Decimal
	GSTRate         decimal.Decimal
	DiscountPercent decimal.Decimal
	ActorID         uuid.UUID `validate:"required"`
}

// RecordPaymentInput records one payment.
type RecordPaymentInput struct {
	InvoiceID uuid.UUID `validate:"required"`
	Amount    decimal.Decimal
	Method    PaymentMethod `validate:"required"`
	Reference string        `validate:"max=255"`
	Notes     string        `validate:"max=2000"`
	ActorID   uuid.UUID     `validate:"required"`
}

// CreateCreditNoteInput reverses value on a paid invoice.
type CreateCreditNoteInput struct {
	InvoiceID uuid.UUID `validate:"required"`
	Amount    decimal.Decimal
	GSTRate   decimal.Decimal
	Reason    string    `validate:"required"`
	ActorID   uuid.UUID `validate:"required"`
}

// FinalizedError rejects a write to a finalized invoice.
type FinalizedError struct {
	InvoiceNumber string
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("invoice %s is finalized and immutable", e.InvoiceNumber)
}

// PaymentExceedsBalanceError rejects a payment larger than the balance
// due. Both figures ride along for the caller's message.
type PaymentExceedsBalanceError struct {
	InvoiceNumber string
	Requested     decimal.Decimal
	BalanceDue    decimal.Decimal
}

func (e *PaymentExceedsBalanceError) Error() string {
	return fmt.Sprintf("invoice %s: payment %s exceeds balance due %s",
		e.InvoiceNumber, e.Requested.StringFixed(2), e.BalanceDue.StringFixed(2))
}
