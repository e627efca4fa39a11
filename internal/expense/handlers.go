package expense

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/extraction"
	"github.com/zombor/expense-tracker/internal/report"
)

// maxUploadSize bounds receipt uploads (high-resolution phone photos fit well below it)
const maxUploadSize = int64(50 << 20) // 50MB

// writeText writes a plain text response
func writeText(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	io.WriteString(w, message)
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// render executes a page template
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Error rendering page", "template", name, "error", err)
	}
}

type indexPage struct {
	Title string
}

type reportPage struct {
	Title   string
	Summary *report.Summary
	Chart   template.URL
	Months  []report.Month
}

type historyPage struct {
	Title    string
	Expenses []*Expense
}

// handleIndex serves the upload and manual entry forms
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", indexPage{Title: "Upload"})
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleUpload reads the total of an uploaded receipt and records it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		slog.Warn("Error parsing multipart form", "error", err)
		writeText(w, "No file part", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("receipt")
	if err != nil {
		// A file input submitted without a selection arrives as an empty value
		if _, ok := r.MultipartForm.Value["receipt"]; ok {
			writeText(w, "No selected file", http.StatusBadRequest)
			return
		}
		writeText(w, "No file part", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Filename == "" {
		writeText(w, "No selected file", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeText(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeText(w, "No selected file", http.StatusBadRequest)
		return
	}

	expense, err := s.service.ProcessReceipt(r.Context(), Upload{
		Filename:    header.Filename,
		ContentType: uploadContentType(header.Header.Get("Content-Type"), header.Filename, data),
		Data:        data,
		Category:    r.FormValue("category"),
	})
	switch {
	case errors.Is(err, ErrDuplicate):
		writeText(w, "This receipt has already been uploaded.", http.StatusConflict)
	case errors.Is(err, ErrTotalNotFound):
		writeText(w, "Total amount not found", http.StatusUnprocessableEntity)
	case errors.Is(err, ErrScanFailed):
		slog.Error("Error reading receipt", "filename", header.Filename, "error", err)
		writeText(w, "Could not read the receipt. Please try again later.", http.StatusBadGateway)
	case err != nil:
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
	default:
		writeText(w, "Total amount: "+extraction.FormatAmount(expense.Amount), http.StatusOK)
	}
}

// uploadContentType picks the MIME type of an upload from its part header,
// its extension, or its leading bytes
func uploadContentType(declared, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return http.DetectContentType(data)
}

// handleAddExpense records a manually entered expense
func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, "Invalid form", http.StatusBadRequest)
		return
	}

	_, err := s.service.AddExpense(r.Context(), r.PostFormValue("amount"), r.PostFormValue("category"))
	if errors.Is(err, ErrInvalidAmount) {
		writeText(w, "Amount must be a positive number", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Error adding expense", "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/history", http.StatusSeeOther)
}

// monthFromRequest reads the {month} path value, defaulting to the current month
func (s *Server) monthFromRequest(r *http.Request) (report.Month, error) {
	if value := r.PathValue("month"); value != "" {
		return report.ParseMonth(value)
	}
	return s.service.CurrentMonth(), nil
}

// handleReport renders the spending report of a month
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthFromRequest(r)
	if err != nil {
		writeText(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.service.MonthlyReport(r.Context(), month)
	if err != nil {
		slog.Error("Error building report", "month", month.String(), "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	months, err := s.service.ReportMonths(r.Context())
	if err != nil {
		slog.Error("Error listing report months", "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	page := reportPage{Title: month.String(), Summary: summary, Months: months}

	// The report is still useful without its chart
	chart, err := report.PieChart(summary)
	if err != nil {
		slog.Warn("Error rendering chart", "month", month.String(), "error", err)
	} else if chart != "" {
		page.Chart = template.URL("data:image/png;base64," + chart)
	}

	s.render(w, "report.html", page)
}

// handleHistory renders every expense
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.History(r.Context())
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "history.html", historyPage{Title: "History", Expenses: expenses})
}

// handleListExpenses returns every expense, most recent first
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.History(r.Context())
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if expenses == nil {
		expenses = []*Expense{}
	}
	writeJSON(w, expenses, http.StatusOK)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeText(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting expense", "id", r.PathValue("id"), "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, expense, http.StatusOK)
}

// handleGetExpenseFile returns the receipt file of an expense
func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExpenseFile(r.Context(), r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("Error getting receipt file", "id", r.PathValue("id"), "error", err)
		}
		writeText(w, "File not found", http.StatusNotFound)
		return
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes an expense and its receipt file
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteExpense(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeText(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting expense", "id", r.PathValue("id"), "error", err)
		writeText(w, "Error deleting expense", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reportResponse struct {
	Month      string                 `json:"month"`
	Total      decimal.Decimal        `json:"total"`
	Count      int                    `json:"count"`
	Categories []report.CategoryTotal `json:"categories"`
}

// handleGetReport returns the spending report of a month as JSON
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	month, err := report.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeText(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.service.MonthlyReport(r.Context(), month)
	if err != nil {
		slog.Error("Error building report", "month", month.String(), "error", err)
		writeText(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, reportResponse{
		Month:      month.String(),
		Total:      summary.Total,
		Count:      summary.Count,
		Categories: summary.Categories,
	}, http.StatusOK)
}
