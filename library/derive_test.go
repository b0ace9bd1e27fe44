package library

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCalculateFine(t *testing.T) {
	tests := []struct {
		name string
		due  time.Time
		want int64
	}{
		{"three days late", fixedNow.Add(-72 * time.Hour), 15},
		{"due tomorrow", fixedNow.Add(24 * time.Hour), 0},
		{"due right now", fixedNow, 0},
		{"one hour late counts a day", fixedNow.Add(-time.Hour), 5},
		{"just over two days", fixedNow.Add(-49 * time.Hour), 15},
		{"no due date", time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFine(tt.due, fixedNow)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "want %d, got %s", tt.want, got)
		})
	}
}

func TestTotalFinesStopsAtReturn(t *testing.T) {
	returned := fixedNow.Add(-10 * 24 * time.Hour)
	records := []BorrowRecord{
		// returned two days late; later time passing does not add to it
		{ID: "r1", DueDate: returned.Add(-48 * time.Hour), ReturnedAt: &returned},
		{ID: "r2", DueDate: fixedNow.Add(-24 * time.Hour)},
		{ID: "r3", DueDate: fixedNow.Add(72 * time.Hour)},
	}
	got := TotalFines(records, fixedNow)
	assert.True(t, got.Equal(decimal.NewFromInt(15)), "got %s", got)
}

func TestHistoryPartitions(t *testing.T) {
	at := fixedNow
	records := []BorrowRecord{{ID: "a"}, {ID: "b", ReturnedAt: &at}, {ID: "c"}}

	current := CurrentlyBorrowed(records)
	returned := ReturnedHistory(records)
	assert.Len(t, current, 2)
	assert.Equal(t, "a", current[0].ID)
	assert.Equal(t, "c", current[1].ID)
	assert.Len(t, returned, 1)
	assert.Equal(t, "b", returned[0].ID)

	assert.Empty(t, CurrentlyBorrowed(nil))
	assert.NotNil(t, ReturnedHistory(nil))
}

func TestSearchBooks(t *testing.T) {
	books := []Book{
		{ID: "1", Title: "Dune", Author: "Frank Herbert"},
		{ID: "2", Title: "Emma", Author: "Jane Austen"},
		{ID: "3", Title: "Persuasion", Author: "Jane Austen"},
	}

	got := SearchBooks(books, "  AUSTEN ")
	if assert.Len(t, got, 2) {
		assert.Equal(t, "2", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	}
	assert.Len(t, SearchBooks(books, "dun"), 1)
	assert.Len(t, SearchBooks(books, ""), 3)
	assert.Empty(t, SearchBooks(books, "tolkien"))
	assert.Equal(t, "Dune", books[0].Title, "input must not be modified")
}

func TestStats(t *testing.T) {
	books := []Book{
		{Status: StatusAvailable},
		{Status: "available"},
		{Status: StatusBorrowed},
		{Status: "Lost"},
	}
	assert.Equal(t, CatalogStats{Total: 4, Available: 2, Borrowed: 1}, Stats(books))
	assert.Equal(t, CatalogStats{}, Stats(nil))
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, PlaceholderImage, ImageURL("http://api", ""))
	assert.Equal(t, "http://api:5000/uploads/a.png", ImageURL("http://api:5000/", "/uploads/a.png"))
	assert.Equal(t, "http://api/uploads/a.png", ImageURL("http://api", "uploads/a.png"))
	assert.Equal(t, "https://cdn.example/x.jpg", ImageURL("http://api", "https://cdn.example/x.jpg"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Dune", Truncate("Dune", 10))
	assert.Equal(t, "The Left...", Truncate("The Left Hand of Darkness", 11))
	assert.Equal(t, "Ébè", Truncate("Ébène", 3))
	assert.Len(t, []rune(Truncate("ééééééééé", 6)), 6)
}
