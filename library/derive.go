package library

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DailyFineRate is charged for every started day past the due date.
var DailyFineRate = decimal.NewFromInt(5)

// PlaceholderImage is shown for books without a cover.
const PlaceholderImage = "https://via.placeholder.com/200x300?text=No+Image"

// OverdueDays counts started days between due and now; negative when not yet due.
func OverdueDays(due, now time.Time) int {
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}

// CalculateFine is the penalty owed on a loan due at due, evaluated at now.
func CalculateFine(due, now time.Time) decimal.Decimal {
	if due.IsZero() {
		return decimal.Zero
	}
	days := OverdueDays(due, now)
	if days <= 0 {
		return decimal.Zero
	}
	return DailyFineRate.Mul(decimal.NewFromInt(int64(days)))
}

// TotalFines sums the current fine of every record.
func TotalFines(records []BorrowRecord, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		end := now
		if r.ReturnedAt != nil {
			end = *r.ReturnedAt
		}
		total = total.Add(CalculateFine(r.DueDate, end))
	}
	return total
}

// CurrentlyBorrowed returns the records that have not been returned.
func CurrentlyBorrowed(records []BorrowRecord) []BorrowRecord {
	out := []BorrowRecord{}
	for _, r := range records {
		if !r.Returned() {
			out = append(out, r)
		}
	}
	return out
}

// ReturnedHistory returns the closed records.
func ReturnedHistory(records []BorrowRecord) []BorrowRecord {
	out := []BorrowRecord{}
	for _, r := range records {
		if r.Returned() {
			out = append(out, r)
		}
	}
	return out
}

// SearchBooks filters by case-insensitive title or author match, keeping order.
func SearchBooks(books []Book, term string) []Book {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if term == "" ||
			strings.Contains(strings.ToLower(b.Title), term) ||
			strings.Contains(strings.ToLower(b.Author), term) {
			out = append(out, b)
		}
	}
	return out
}

// CatalogStats backs the dashboards' summary cards.
type CatalogStats struct {
	Total     int
	Available int
	Borrowed  int
}

func Stats(books []Book) CatalogStats {
	s := CatalogStats{Total: len(books)}
	for _, b := range books {
		switch {
		case strings.EqualFold(string(b.Status), string(StatusAvailable)):
			s.Available++
		case strings.EqualFold(string(b.Status), string(StatusBorrowed)):
			s.Borrowed++
		}
	}
	return s
}

// ImageURL resolves a book's image reference against the backend origin.
func ImageURL(origin, path string) string {
	if path == "" {
		return PlaceholderImage
	}
	if strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(path, "/")
}
