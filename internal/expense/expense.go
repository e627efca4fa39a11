package expense

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate is returned when an upload's content hash was seen before
	ErrDuplicate = errors.New("receipt already uploaded")
	// ErrTotalNotFound is returned when no total could be read from a receipt
	ErrTotalNotFound = errors.New("total amount not found")
	// ErrNotFound is returned when an expense does not exist
	ErrNotFound = errors.New("expense not found")
	// ErrScanFailed is returned when the OCR backend could not read a receipt
	ErrScanFailed = errors.New("reading receipt text failed")
	// ErrInvalidAmount is returned for a manual amount that is not a positive number
	ErrInvalidAmount = errors.New("amount must be a positive number")
)

// Expense is one recorded spending, read from a receipt or entered by hand
type Expense struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	SourceHash  string          `json:"source_hash,omitempty"` // SHA-256 of the uploaded receipt
	Filename    string          `json:"filename,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HasReceipt reports whether a receipt file is stored for the expense
func (e *Expense) HasReceipt() bool {
	return e.Filename != ""
}
