package library

import "context"

// AuthResult is a successful login or registration.
type AuthResult struct {
	Token string
	User  User
}

// AuthAPI is the remote authentication surface.
type AuthAPI interface {
	Login(ctx context.Context, c Credentials) (AuthResult, error)
	Register(ctx context.Context, r Registration) (AuthResult, error)
}

// BookAPI is the remote catalog and circulation surface.
type BookAPI interface {
	ListBooks(ctx context.Context) ([]Book, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	CreateBook(ctx context.Context, d BookDraft) (*Book, error)
	UpdateBook(ctx context.Context, id string, d BookDraft) (*Book, error)
	DeleteBook(ctx context.Context, id string) error
	BorrowBook(ctx context.Context, id string) (*Book, error)
	ReturnBook(ctx context.Context, id string) (*Book, error)
	UserHistory(ctx context.Context) ([]BorrowRecord, error)
}

// UserAPI is the admin-only account surface.
type UserAPI interface {
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, u UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// API is everything the stores consume.
type API interface {
	AuthAPI
	BookAPI
	UserAPI
}
