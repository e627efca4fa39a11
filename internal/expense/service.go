package expense

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/extraction"
	"github.com/zombor/expense-tracker/internal/report"
	"github.com/zombor/expense-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Upload is a receipt file sent by the user
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Category    string
}

// Service handles expense operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	policy      extraction.Policy
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, policy extraction.Policy) *Service {
	return NewServiceWithDeps(db, scanner, storage, policy, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, policy extraction.Policy, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		policy:      policy,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps phone generated names short and filesystem safe
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	base = strings.ReplaceAll(base, " ", "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// HashBytes returns the hex SHA-256 of data, the key of the dedup gate
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// today is the current date at midnight UTC
func (s *Service) today() time.Time {
	now := s.timeSource.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// IsDuplicate reports whether a receipt with this content hash was already stored
func (s *Service) IsDuplicate(ctx context.Context, hash string) (bool, error) {
	found, err := s.db.HasHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("checking for duplicate: %w", err)
	}
	return found, nil
}

// ProcessReceipt stores an uploaded receipt, reads its total and records the
// expense. Uploads seen before stop at the dedup gate with ErrDuplicate and
// are never scanned. A receipt without a readable total returns
// ErrTotalNotFound and nothing is recorded.
func (s *Service) ProcessReceipt(ctx context.Context, upload Upload) (*Expense, error) {
	id := s.idGenerator.Generate()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(upload.Filename)), upload.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	expense, err := s.recordReceipt(ctx, id, savedPath, upload)
	if err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to remove uploaded file", "filename", savedPath, "error", delErr)
		}
		return nil, err
	}
	return expense, nil
}

func (s *Service) recordReceipt(ctx context.Context, id, savedPath string, upload Upload) (*Expense, error) {
	hash := HashBytes(upload.Data)

	duplicate, err := s.IsDuplicate(ctx, hash)
	if err != nil {
		return nil, err
	}
	if duplicate {
		slog.Info("Skipping duplicate receipt", "filename", upload.Filename, "hash", hash)
		return nil, ErrDuplicate
	}

	text, err := s.scanner.ReadText(ctx, upload.Data, upload.ContentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", upload.Filename,
			"content_type", upload.ContentType,
			"file_size", len(upload.Data),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}
	slog.Debug("OCR detected text", "filename", upload.Filename, "text", text)

	result := s.policy.Extract(text)
	if !result.Found {
		slog.Info("No total found on receipt", "filename", upload.Filename, "policy", s.policy.Name())
		return nil, ErrTotalNotFound
	}

	expense := &Expense{
		ID:          id,
		Date:        s.today(),
		Amount:      result.Amount,
		Category:    strings.TrimSpace(upload.Category),
		SourceHash:  hash,
		Filename:    savedPath,
		ContentType: upload.ContentType,
		CreatedAt:   s.timeSource.Now(),
	}

	if err := s.db.SaveExpense(ctx, expense); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	slog.Info("Recorded receipt", "id", id, "amount", result.String(), "policy", s.policy.Name())
	return expense, nil
}

// AddExpense records an expense entered by hand
func (s *Service) AddExpense(ctx context.Context, amount string, category string) (*Expense, error) {
	value, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(amount), ",", "."))
	if err != nil || !value.IsPositive() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	expense := &Expense{
		ID:        s.idGenerator.Generate(),
		Date:      s.today(),
		Amount:    value.Round(2),
		Category:  strings.TrimSpace(category),
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(ctx context.Context, id string) (*Expense, error) {
	expense, err := s.db.GetExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// History returns every expense, most recent first
func (s *Service) History(ctx context.Context) ([]*Expense, error) {
	expenses, err := s.db.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sortNewestFirst(expenses)
	return expenses, nil
}

func sortNewestFirst(expenses []*Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// DeleteExpense removes an expense and its receipt file
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	expense, err := s.db.GetExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if expense.HasReceipt() {
		if err := s.storage.Delete(expense.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", expense.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the receipt file of an expense
func (s *Service) GetExpenseFile(ctx context.Context, id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if !expense.HasReceipt() {
		return nil, "", fmt.Errorf("%w: no receipt file for %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(expense.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, expense.ContentType, nil
}

// CurrentMonth is the month reports default to
func (s *Service) CurrentMonth() report.Month {
	return report.MonthOf(s.timeSource.Now())
}

// MonthlyReport summarizes the spending of a month by category
func (s *Service) MonthlyReport(ctx context.Context, month report.Month) (*report.Summary, error) {
	expenses, err := s.db.ListExpensesBetween(ctx, month.Start(), month.End())
	if err != nil {
		return nil, fmt.Errorf("listing expenses for %s: %w", month, err)
	}
	return report.Build(month, toItems(expenses)), nil
}

// ReportMonths lists the months that have expenses, newest first
func (s *Service) ReportMonths(ctx context.Context) ([]report.Month, error) {
	expenses, err := s.db.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return report.Months(toItems(expenses)), nil
}

func toItems(expenses []*Expense) []report.Item {
	items := make([]report.Item, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, report.Item{Date: e.Date, Amount: e.Amount, Category: e.Category})
	}
	return items
}
