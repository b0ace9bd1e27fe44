package library

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Catalog is the client-side cache of books, the book being viewed and the
// member's borrow history.
//
// Every fetch is stamped with a generation; a response commits only if no newer
// fetch or local commit happened to the same collection in the meantime.
type Catalog struct {
	api BookAPI
	now func() time.Time

	mu         sync.Mutex
	books      []Book
	current    *Book
	history    []BorrowRecord
	booksGen   uint64
	currentGen uint64
	historyGen uint64
	cancelOne  context.CancelFunc
	pending    int
	err        error
}

func NewCatalog(api BookAPI) *Catalog {
	return &Catalog{api: api, now: time.Now, books: []Book{}, history: []BorrowRecord{}}
}

func (c *Catalog) begin() {
	c.mu.Lock()
	c.pending++
	c.err = nil
	c.mu.Unlock()
}

// end must be called with c.mu held. Failures of superseded fetches are
// returned to their caller but never recorded.
func (c *Catalog) end(err error, stale bool) {
	c.pending--
	if err != nil && !stale && !errors.Is(err, context.Canceled) {
		c.err = err
	}
}

// LoadAll replaces the book collection with the server's.
func (c *Catalog) LoadAll(ctx context.Context) ([]Book, error) {
	c.begin()
	c.mu.Lock()
	c.booksGen++
	gen := c.booksGen
	c.mu.Unlock()

	books, err := c.api.ListBooks(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, gen != c.booksGen)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []Book{}
	}
	if gen == c.booksGen {
		c.books = books
	}
	return cloneBooks(books), nil
}

// LoadOne replaces the current book. Starting a new detail fetch cancels the
// previous one.
func (c *Catalog) LoadOne(ctx context.Context, id string) (*Book, error) {
	c.begin()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancelOne != nil {
		c.cancelOne()
	}
	c.cancelOne = cancel
	c.currentGen++
	gen := c.currentGen
	c.mu.Unlock()

	b, err := c.api.GetBook(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.currentGen {
		c.cancelOne = nil
	}
	c.end(err, gen != c.currentGen)
	if err != nil {
		return nil, err
	}
	if gen == c.currentGen {
		cur := *b
		c.current = &cur
	}
	out := *b
	return &out, nil
}

// requiredBookFields lists the draft fields that may not be blank.
var requiredBookFields = []string{"title", "author", "isbn", "category", "totalCopies"}

// ValidateDraft checks a book draft without touching the network.
func ValidateDraft(d BookDraft) error {
	present := map[string]bool{
		"title":       d.Title != "",
		"author":      d.Author != "",
		"isbn":        d.ISBN != "",
		"category":    d.Category != "",
		"totalCopies": d.TotalCopies != nil,
	}
	var missing []string
	for _, f := range requiredBookFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if *d.TotalCopies < 0 {
		return &ValidationError{Fields: []string{"totalCopies"}, Message: "Total copies cannot be negative"}
	}
	if d.AvailableCopies != nil && (*d.AvailableCopies < 0 || *d.AvailableCopies > *d.TotalCopies) {
		return &ValidationError{Fields: []string{"availableCopies"}, Message: "Available copies must be between 0 and total copies"}
	}
	return nil
}

func (c *Catalog) reject(err error) error {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return err
}

// Create validates the draft, creates the book and appends it to the collection.
func (c *Catalog) Create(ctx context.Context, d BookDraft) (*Book, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, c.reject(err)
	}
	if d.AvailableCopies == nil {
		d.AvailableCopies = Copies(*d.TotalCopies)
	}

	c.begin()
	b, err := c.api.CreateBook(ctx, d)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, false)
	if err != nil {
		return nil, err
	}
	c.books = append(c.books, *b)
	c.booksGen++
	out := *b
	return &out, nil
}

// Update edits a book. The cached entry is replaced by identity; an id missing
// from the cache is not added.
func (c *Catalog) Update(ctx context.Context, id string, d BookDraft) (*Book, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, c.reject(err)
	}

	c.begin()
	b, err := c.api.UpdateBook(ctx, id, d)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, false)
	if err != nil {
		return nil, err
	}
	c.merge(*b)
	out := *b
	return &out, nil
}

// merge must be called with c.mu held.
func (c *Catalog) merge(b Book) {
	for i := range c.books {
		if c.books[i].ID == b.ID {
			c.books[i] = b
			c.booksGen++
			break
		}
	}
	if c.current != nil && c.current.ID == b.ID {
		cur := b
		c.current = &cur
		c.currentGen++
	}
}

// Remove deletes a book. Removing an id that is not cached is a no-op.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	c.begin()
	err := c.api.DeleteBook(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, false)
	if err != nil {
		return err
	}
	kept := c.books[:0:0]
	for _, b := range c.books {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) != len(c.books) {
		c.books = kept
		c.booksGen++
	}
	return nil
}

// Borrow takes a copy of the book and merges the server's view of it. The
// caller refreshes the detail view.
func (c *Catalog) Borrow(ctx context.Context, id string) (*Book, error) {
	return c.circulate(ctx, id, c.api.BorrowBook)
}

// Return gives back the caller's copy of the book.
func (c *Catalog) Return(ctx context.Context, id string) (*Book, error) {
	return c.circulate(ctx, id, c.api.ReturnBook)
}

func (c *Catalog) circulate(ctx context.Context, id string, call func(context.Context, string) (*Book, error)) (*Book, error) {
	c.begin()
	b, err := call(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, false)
	if err != nil {
		return nil, err
	}
	c.merge(*b)
	out := *b
	return &out, nil
}

// LoadUserHistory replaces the history with the signed-in member's records.
func (c *Catalog) LoadUserHistory(ctx context.Context) ([]BorrowRecord, error) {
	c.begin()
	c.mu.Lock()
	c.historyGen++
	gen := c.historyGen
	c.mu.Unlock()

	records, err := c.api.UserHistory(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err, gen != c.historyGen)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []BorrowRecord{}
	}
	if gen == c.historyGen {
		c.history = records
	}
	return append([]BorrowRecord(nil), records...), nil
}

// ------------------ Readers ------------------

func cloneBooks(in []Book) []Book {
	return append(make([]Book, 0, len(in)), in...)
}

// Books returns a copy of the cached collection in server order.
func (c *Catalog) Books() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneBooks(c.books)
}

// Search filters the cached collection without changing it.
func (c *Catalog) Search(term string) []Book {
	return SearchBooks(c.Books(), term)
}

func (c *Catalog) CurrentBook() (*Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	b := *c.current
	return &b, true
}

func (c *Catalog) History() []BorrowRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BorrowRecord(nil), c.history...)
}

func (c *Catalog) CurrentlyBorrowed() []BorrowRecord { return CurrentlyBorrowed(c.History()) }
func (c *Catalog) ReturnedHistory() []BorrowRecord   { return ReturnedHistory(c.History()) }

// Fines recomputes the total fine on the cached history as of now.
func (c *Catalog) Fines() decimal.Decimal {
	return TotalFines(c.History(), c.now())
}

func (c *Catalog) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

func (c *Catalog) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Catalog) ClearError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
}
