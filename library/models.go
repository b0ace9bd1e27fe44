package library

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the closed set of account roles the API issues.
type Role int

const (
	RoleMember Role = iota + 1
	RoleLibrarian
	RoleAdmin
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleLibrarian, RoleMember}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleLibrarian:
		return "Librarian"
	case RoleMember:
		return "Member"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleMember:
		return true
	}
	return false
}

// ParseRole converts the wire name of a role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("marshal %s", r)
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is the identity issued by the API for a session.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// BookStatus mirrors the server's availability flag.
type BookStatus string

const (
	StatusAvailable BookStatus = "Available"
	StatusBorrowed  BookStatus = "Borrowed"
)

// Loan is one outstanding copy of a book.
type Loan struct {
	ID         string    `json:"_id"`
	UserID     string    `json:"user"`
	BorrowedAt time.Time `json:"borrowedAt"`
	DueDate    time.Time `json:"dueDate"`
}

// Book is a catalog entry together with its active-loan ledger.
type Book struct {
	ID              string     `json:"_id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	ISBN            string     `json:"isbn"`
	Description     string     `json:"description,omitempty"`
	Category        string     `json:"category"`
	Image           string     `json:"image,omitempty"`
	TotalCopies     int        `json:"totalCopies"`
	AvailableCopies int        `json:"availableCopies"`
	Status          BookStatus `json:"status"`
	Borrower        string     `json:"borrower,omitempty"`
	Loans           []Loan     `json:"loans,omitempty"`
}

// HasLoan reports whether userID holds an outstanding copy of b.
// Books without a ledger fall back to the single borrower reference.
func (b Book) HasLoan(userID string) bool {
	if userID == "" {
		return false
	}
	if len(b.Loans) > 0 {
		for _, l := range b.Loans {
			if l.UserID == userID {
				return true
			}
		}
		return false
	}
	return b.Status == StatusBorrowed && b.Borrower == userID
}

// BorrowRecord is a loan as reported in a member's history.
type BorrowRecord struct {
	ID         string          `json:"_id"`
	Book       *Book           `json:"book,omitempty"`
	Borrower   string          `json:"user"`
	BorrowedAt time.Time       `json:"borrowedAt"`
	DueDate    time.Time       `json:"dueDate"`
	ReturnedAt *time.Time      `json:"returnedAt,omitempty"`
	Fine       decimal.Decimal `json:"fine"`
}

// Returned reports whether the record has been closed.
func (r BorrowRecord) Returned() bool { return r.ReturnedAt != nil }

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form. ConfirmPassword never leaves the client.
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	Role            Role   `json:"role"`
}

// UserUpdate carries the editable profile fields.
type UserUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Upload is an optional cover image sent with a book draft.
type Upload struct {
	Filename string
	Content  io.Reader
}

// BookDraft holds book form fields. Nil copy counts mean the field was left blank.
type BookDraft struct {
	Title           string
	Author          string
	ISBN            string
	Description     string
	Category        string
	TotalCopies     *int
	AvailableCopies *int
	Image           *Upload
}

// Copies is a helper for filling BookDraft count fields.
func Copies(n int) *int { return &n }
