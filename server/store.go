package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"library-portal/library"
)

var (
	errNotFound    = errors.New("not found")
	errDuplicate   = errors.New("already exists")
	errUnavailable = errors.New("no copies available")
	errNotBorrowed = errors.New("book is not borrowed by this user")
	errOnLoan      = errors.New("book has copies on loan")
)

// Store provides high-level helpers around the backend's SQLite connection.
type Store struct {
	db *sql.DB

	addBookStmt *sql.Stmt
	addUserStmt *sql.Stmt
}

// OpenStore opens (or creates) the SQLite database at path, applies schema
// migrations, and prepares common statements.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *Store) Close() error {
	if s.addBookStmt != nil {
		s.addBookStmt.Close()
	}
	if s.addUserStmt != nil {
		s.addUserStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL,
            image TEXT NOT NULL DEFAULT '',
            total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
            available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id TEXT PRIMARY KEY,
            book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            borrowed_at DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            returned_at DATETIME
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_open ON loans(book_id, returned_at);`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) prepareStatements() error {
	var err error
	if s.addBookStmt, err = s.db.Prepare(`INSERT INTO books(id,title,author,isbn,description,category,image,total_copies,available_copies) VALUES(?,?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if s.addUserStmt, err = s.db.Prepare(`INSERT INTO users(id,name,email,password_hash,role) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users and sessions
// ---------------------------------------------------------------------------

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateUser(ctx context.Context, name, email, hash string, role library.Role) (library.User, error) {
	u := library.User{ID: uuid.NewString(), Name: name, Email: strings.ToLower(email), Role: role}
	if _, err := s.addUserStmt.ExecContext(ctx, u.ID, u.Name, u.Email, hash, role.String()); err != nil {
		if isUniqueViolation(err) {
			return library.User{}, errDuplicate
		}
		return library.User{}, err
	}
	return u, nil
}

func scanUser(row interface{ Scan(...any) error }, extra ...any) (library.User, error) {
	var (
		u    library.User
		role string
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email, &role}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.User{}, errNotFound
		}
		return library.User{}, err
	}
	r, err := library.ParseRole(role)
	if err != nil {
		return library.User{}, err
	}
	u.Role = r
	return u, nil
}

// UserByEmail returns the account and its password hash.
func (s *Store) UserByEmail(ctx context.Context, email string) (library.User, string, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT id,name,email,role,password_hash FROM users WHERE email=?`, strings.ToLower(email)), &hash)
	return u, hash, err
}

func (s *Store) UserByID(ctx context.Context, id string) (library.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT id,name,email,role FROM users WHERE id=?`, id))
}

func (s *Store) ListUsers(ctx context.Context) ([]library.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,email,role FROM users ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []library.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, in library.UserUpdate) (library.User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name=?, email=?, role=? WHERE id=?`, in.Name, strings.ToLower(in.Email), in.Role.String(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return library.User{}, errDuplicate
		}
		return library.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.User{}, errNotFound
	}
	return s.UserByID(ctx, id)
}

// DeleteUser removes an account together with its sessions and loans,
// returning any copies it still held.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies +
        (SELECT COUNT(*) FROM loans WHERE loans.book_id = books.id AND loans.user_id = ? AND loans.returned_at IS NULL)`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return tx.Commit()
}

// CreateSession issues an opaque bearer token for userID.
func (s *Store) CreateSession(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token,user_id) VALUES(?,?)`, token, userID); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) UserByToken(ctx context.Context, token string) (library.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT u.id,u.name,u.email,u.role FROM sessions s JOIN users u ON u.id = s.user_id WHERE s.token=?`, token))
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// BookInput is the writable part of a book.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	Description     string
	Category        string
	Image           string
	TotalCopies     int
	AvailableCopies int
}

func (s *Store) CreateBook(ctx context.Context, in BookInput) (*library.Book, error) {
	id := uuid.NewString()
	if _, err := s.addBookStmt.ExecContext(ctx, id, in.Title, in.Author, in.ISBN, in.Description, in.Category, in.Image, in.TotalCopies, in.AvailableCopies); err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

// UpdateBook rewrites a book's fields. Availability follows from the new total
// minus the copies currently on loan; an empty image keeps the old one.
func (s *Store) UpdateBook(ctx context.Context, id string, in BookInput) (*library.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var onLoan int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE book_id=? AND returned_at IS NULL`, id).Scan(&onLoan); err != nil {
		return nil, err
	}
	if in.TotalCopies < onLoan {
		return nil, errOnLoan
	}

	res, err := tx.ExecContext(ctx, `UPDATE books SET title=?, author=?, isbn=?, description=?, category=?,
        image=CASE WHEN ?='' THEN image ELSE ? END, total_copies=?, available_copies=? WHERE id=?`,
		in.Title, in.Author, in.ISBN, in.Description, in.Category, in.Image, in.Image, in.TotalCopies, in.TotalCopies-onLoan, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

// DeleteBook refuses to drop a title while copies are out.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var onLoan int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE book_id=? AND returned_at IS NULL`, id).Scan(&onLoan); err != nil {
		return err
	}
	if onLoan > 0 {
		return errOnLoan
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return tx.Commit()
}

const bookColumns = `id,title,author,isbn,description,category,image,total_copies,available_copies`

func scanBook(row interface{ Scan(...any) error }) (library.Book, error) {
	var b library.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Category, &b.Image, &b.TotalCopies, &b.AvailableCopies)
	if errors.Is(err, sql.ErrNoRows) {
		return b, errNotFound
	}
	return b, err
}

// withLedger attaches active loans and derives status and borrower.
func (s *Store) withLedger(ctx context.Context, b *library.Book) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id,user_id,borrowed_at,due_date FROM loans
        WHERE book_id=? AND returned_at IS NULL ORDER BY borrowed_at`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l library.Loan
		if err := rows.Scan(&l.ID, &l.UserID, &l.BorrowedAt, &l.DueDate); err != nil {
			return err
		}
		b.Loans = append(b.Loans, l)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	b.Status = library.StatusAvailable
	if b.AvailableCopies == 0 {
		b.Status = library.StatusBorrowed
	}
	if n := len(b.Loans); n > 0 && b.Status == library.StatusBorrowed {
		b.Borrower = b.Loans[n-1].UserID
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (*library.Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if err != nil {
		return nil, err
	}
	if err := s.withLedger(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks returns the catalog in insertion order.
func (s *Store) ListBooks(ctx context.Context) ([]library.Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	books := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		books = append(books, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range books {
		if err := s.withLedger(ctx, &books[i]); err != nil {
			return nil, err
		}
	}
	return books, nil
}

// ---------------------------------------------------------------------------
// Circulation
// ---------------------------------------------------------------------------

// Borrow records a loan and takes one copy in a single transaction.
func (s *Store) Borrow(ctx context.Context, bookID, userID string, now, due time.Time) (*library.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var avail int
	if err := tx.QueryRowContext(ctx, `SELECT available_copies FROM books WHERE id=?`, bookID).Scan(&avail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	if avail == 0 {
		return nil, errUnavailable
	}

	var holding bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM loans WHERE book_id=? AND user_id=? AND returned_at IS NULL)`, bookID, userID).Scan(&holding); err != nil {
		return nil, err
	}
	if holding {
		return nil, errDuplicate
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO loans(id,book_id,user_id,borrowed_at,due_date) VALUES(?,?,?,?,?)`,
		uuid.NewString(), bookID, userID, now.UTC(), due.UTC()); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1 WHERE id=?`, bookID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBook(ctx, bookID)
}

// Return closes the user's oldest open loan on the book and puts the copy back.
func (s *Store) Return(ctx context.Context, bookID, userID string, now time.Time) (*library.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var loanID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM loans WHERE book_id=? AND user_id=? AND returned_at IS NULL ORDER BY borrowed_at LIMIT 1`, bookID, userID).
		Scan(&loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotBorrowed
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE loans SET returned_at=? WHERE id=?`, now.UTC(), loanID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies + 1 WHERE id=?`, bookID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBook(ctx, bookID)
}

// History lists a user's loans, newest first, with fines evaluated at now.
func (s *Store) History(ctx context.Context, userID string, now time.Time) ([]library.BorrowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT l.id, l.borrowed_at, l.due_date, l.returned_at,
            b.id, b.title, b.author, b.isbn, b.category, b.image
        FROM loans l JOIN books b ON b.id = l.book_id
        WHERE l.user_id=? ORDER BY l.borrowed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []library.BorrowRecord{}
	for rows.Next() {
		var (
			r        library.BorrowRecord
			b        library.Book
			returned sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.BorrowedAt, &r.DueDate, &returned, &b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.Image); err != nil {
			return nil, err
		}
		r.Borrower = userID
		r.Book = &b
		end := now
		if returned.Valid {
			t := returned.Time
			r.ReturnedAt = &t
			end = t
		}
		r.Fine = library.CalculateFine(r.DueDate, end)
		records = append(records, r)
	}
	return records, rows.Err()
}
