package sequence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a per-branch document counter.
type Kind string

const (
	// KindInvoice numbers tax invoices.
	KindInvoice Kind = "INVOICE"
	// KindJobCard numbers repair job cards.
	KindJobCard Kind = "JOBCARD"
	// KindCreditNote numbers credit notes.
	KindCreditNote Kind = "CREDIT_NOTE"
)

// IsValid reports whether the kind is a known counter.
func (k Kind) IsValid() bool {
	switch k {
	case KindInvoice, KindJobCard, KindCreditNote:
		return true
	default:
		return false
	}
}

// BranchCounter is one branch's counter state for a document kind.
// Counters only increase; numbers burned by aborted transactions are never
// reissued.
type BranchCounter struct {
	BranchID     uuid.UUID
	BranchCode   string
	Prefix       string
	Current      int64
	FYStartMonth time.Month
}

// ErrUnknownKind indicates an unsupported document kind.
var ErrUnknownKind = errors.New("sequence: unknown document kind")

// FinancialYear formats the Indian-style financial year (YYYY-YY) that
// contains t for a fiscal year starting at startMonth.
func FinancialYear(t time.Time, startMonth time.Month) string {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.April
	}
	startYear := t.Year()
	if t.Month() < startMonth {
		startYear--
	}
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// Format renders a document number: {prefix}/{FY}/{branch_code}/{%05d}.
func Format(prefix, financialYear, branchCode string, seq int64) string {
	return fmt.Sprintf("%s/%s/%s/%05d", prefix, financialYear, branchCode, seq)
}
