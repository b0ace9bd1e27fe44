package library

import (
	"context"
	"errors"
	"sync"
)

var errNotStubbed = errors.New("not stubbed")

// fakeAPI records calls and delegates to per-method stubs.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	login      func(context.Context, Credentials) (AuthResult, error)
	register   func(context.Context, Registration) (AuthResult, error)
	listBooks  func(context.Context) ([]Book, error)
	getBook    func(context.Context, string) (*Book, error)
	createBook func(context.Context, BookDraft) (*Book, error)
	updateBook func(context.Context, string, BookDraft) (*Book, error)
	deleteBook func(context.Context, string) error
	borrowBook func(context.Context, string) (*Book, error)
	returnBook func(context.Context, string) (*Book, error)
	history    func(context.Context) ([]BorrowRecord, error)
	listUsers  func(context.Context) ([]User, error)
	updateUser func(context.Context, string, UserUpdate) (*User, error)
	deleteUser func(context.Context, string) error
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI { return &fakeAPI{calls: map[string]int{}} }

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) Login(ctx context.Context, c Credentials) (AuthResult, error) {
	f.record("Login")
	if f.login == nil {
		return AuthResult{}, errNotStubbed
	}
	return f.login(ctx, c)
}

func (f *fakeAPI) Register(ctx context.Context, r Registration) (AuthResult, error) {
	f.record("Register")
	if f.register == nil {
		return AuthResult{}, errNotStubbed
	}
	return f.register(ctx, r)
}

func (f *fakeAPI) ListBooks(ctx context.Context) ([]Book, error) {
	f.record("ListBooks")
	if f.listBooks == nil {
		return nil, errNotStubbed
	}
	return f.listBooks(ctx)
}

func (f *fakeAPI) GetBook(ctx context.Context, id string) (*Book, error) {
	f.record("GetBook")
	if f.getBook == nil {
		return nil, errNotStubbed
	}
	return f.getBook(ctx, id)
}

func (f *fakeAPI) CreateBook(ctx context.Context, d BookDraft) (*Book, error) {
	f.record("CreateBook")
	if f.createBook == nil {
		return nil, errNotStubbed
	}
	return f.createBook(ctx, d)
}

func (f *fakeAPI) UpdateBook(ctx context.Context, id string, d BookDraft) (*Book, error) {
	f.record("UpdateBook")
	if f.updateBook == nil {
		return nil, errNotStubbed
	}
	return f.updateBook(ctx, id, d)
}

func (f *fakeAPI) DeleteBook(ctx context.Context, id string) error {
	f.record("DeleteBook")
	if f.deleteBook == nil {
		return errNotStubbed
	}
	return f.deleteBook(ctx, id)
}

func (f *fakeAPI) BorrowBook(ctx context.Context, id string) (*Book, error) {
	f.record("BorrowBook")
	if f.borrowBook == nil {
		return nil, errNotStubbed
	}
	return f.borrowBook(ctx, id)
}

func (f *fakeAPI) ReturnBook(ctx context.Context, id string) (*Book, error) {
	f.record("ReturnBook")
	if f.returnBook == nil {
		return nil, errNotStubbed
	}
	return f.returnBook(ctx, id)
}

func (f *fakeAPI) UserHistory(ctx context.Context) ([]BorrowRecord, error) {
	f.record("UserHistory")
	if f.history == nil {
		return nil, errNotStubbed
	}
	return f.history(ctx)
}

func (f *fakeAPI) ListUsers(ctx context.Context) ([]User, error) {
	f.record("ListUsers")
	if f.listUsers == nil {
		return nil, errNotStubbed
	}
	return f.listUsers(ctx)
}

func (f *fakeAPI) UpdateUser(ctx context.Context, id string, u UserUpdate) (*User, error) {
	f.record("UpdateUser")
	if f.updateUser == nil {
		return nil, errNotStubbed
	}
	return f.updateUser(ctx, id, u)
}

func (f *fakeAPI) DeleteUser(ctx context.Context, id string) error {
	f.record("DeleteUser")
	if f.deleteUser == nil {
		return errNotStubbed
	}
	return f.deleteUser(ctx, id)
}
