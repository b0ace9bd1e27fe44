package library

import (
	"context"
	"errors"
	"sync"
)

// Navigator moves the view to another screen.
type Navigator interface {
	Navigate(route string)
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Error(err error)
	Success(msg string)
}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopNotifier struct{}

func (nopNotifier) Error(error)    {}
func (nopNotifier) Success(string) {}

// BookRoute is the detail screen for a book.
func BookRoute(id string) string { return RouteBooks + "/" + id }

// Dispatcher sequences store mutations with their navigation side effects.
// Navigation happens only after the remote call succeeded; a second trigger of
// an action that is still awaiting the API is refused with ErrInFlight.
type Dispatcher struct {
	session *Session
	catalog *Catalog
	users   *Directory
	nav     Navigator
	notify  Notifier

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewDispatcher(session *Session, catalog *Catalog, users *Directory, nav Navigator, notify Notifier) *Dispatcher {
	if nav == nil {
		nav = nopNavigator{}
	}
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Dispatcher{
		session:  session,
		catalog:  catalog,
		users:    users,
		nav:      nav,
		notify:   notify,
		inflight: map[string]struct{}{},
	}
}

// InFlight reports whether the action key is awaiting the API.
func (d *Dispatcher) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[key]
	return ok
}

func (d *Dispatcher) acquire(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[key]; ok {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

// authorize checks the signed-in user against allow.
func (d *Dispatcher) authorize(allow func(User) bool) error {
	u, ok := d.session.CurrentUser()
	if !ok || !d.session.IsAuthenticated() {
		return ErrUnauthorized
	}
	if !allow(*u) {
		return ErrForbidden
	}
	return nil
}

// action is one guarded dispatcher step.
type action[T any] struct {
	key     string
	check   func() error
	call    func() (T, error)
	route   func(T) string
	success string
}

func dispatch[T any](d *Dispatcher, a action[T]) (T, error) {
	var zero T
	if !d.acquire(a.key) {
		return zero, ErrInFlight
	}
	defer d.release(a.key)

	if a.check != nil {
		if err := a.check(); err != nil {
			d.notify.Error(err)
			return zero, err
		}
	}
	res, err := a.call()
	if err != nil {
		d.notify.Error(err)
		return zero, err
	}
	if a.success != "" {
		d.notify.Success(a.success)
	}
	if a.route != nil {
		if r := a.route(res); r != "" {
			d.nav.Navigate(r)
		}
	}
	return res, nil
}

// ------------------ Session ------------------

func (d *Dispatcher) Login(ctx context.Context, c Credentials) (*User, error) {
	return dispatch(d, action[*User]{
		key:   "login",
		call:  func() (*User, error) { return d.session.Login(ctx, c) },
		route: func(u *User) string { return HomeRoute(u.Role) },
	})
}

func (d *Dispatcher) Register(ctx context.Context, r Registration) (*User, error) {
	return dispatch(d, action[*User]{
		key:   "register",
		call:  func() (*User, error) { return d.session.Register(ctx, r) },
		route: func(u *User) string { return HomeRoute(u.Role) },
	})
}

func (d *Dispatcher) Logout() {
	d.session.Logout()
	d.nav.Navigate(RouteLogin)
}

// ------------------ Books ------------------

func (d *Dispatcher) canManageBooks() error {
	return d.authorize(func(u User) bool { return CanManageBooks(u.Role) })
}

func (d *Dispatcher) CreateBook(ctx context.Context, draft BookDraft) (*Book, error) {
	return dispatch(d, action[*Book]{
		key:     "create-book",
		check:   d.canManageBooks,
		call:    func() (*Book, error) { return d.catalog.Create(ctx, draft) },
		route:   func(*Book) string { return RouteBooks },
		success: "Book added",
	})
}

func (d *Dispatcher) EditBook(ctx context.Context, id string, draft BookDraft) (*Book, error) {
	return dispatch(d, action[*Book]{
		key:     "edit-book:" + id,
		check:   d.canManageBooks,
		call:    func() (*Book, error) { return d.catalog.Update(ctx, id, draft) },
		route:   func(b *Book) string { return BookRoute(b.ID) },
		success: "Book updated",
	})
}

func (d *Dispatcher) DeleteBook(ctx context.Context, id string) error {
	_, err := dispatch(d, action[struct{}]{
		key:     "delete-book:" + id,
		check:   d.canManageBooks,
		call:    func() (struct{}, error) { return struct{}{}, d.catalog.Remove(ctx, id) },
		route:   func(struct{}) string { return RouteBooks },
		success: "Book deleted",
	})
	return err
}

// BorrowBook borrows the book as rendered and then refreshes the detail view
// and the member's history.
func (d *Dispatcher) BorrowBook(ctx context.Context, book Book) (*Book, error) {
	return dispatch(d, action[*Book]{
		key: "borrow:" + book.ID,
		check: func() error {
			return d.authorize(func(u User) bool { return CanBorrow(u.Role, book) })
		},
		call: func() (*Book, error) {
			b, err := d.catalog.Borrow(ctx, book.ID)
			if err != nil {
				return nil, err
			}
			return d.refresh(ctx, b), nil
		},
		success: "Book borrowed",
	})
}

// ReturnBook gives back the member's copy and refreshes like BorrowBook.
func (d *Dispatcher) ReturnBook(ctx context.Context, book Book) (*Book, error) {
	return dispatch(d, action[*Book]{
		key: "return:" + book.ID,
		check: func() error {
			return d.authorize(func(u User) bool { return CanReturn(u.Role, book, u.ID) })
		},
		call: func() (*Book, error) {
			b, err := d.catalog.Return(ctx, book.ID)
			if err != nil {
				return nil, err
			}
			return d.refresh(ctx, b), nil
		},
		success: "Book returned",
	})
}

// refresh re-fetches the detail view after a circulation change. Refresh
// failures are reported but do not undo the completed action.
func (d *Dispatcher) refresh(ctx context.Context, changed *Book) *Book {
	b, err := d.catalog.LoadOne(ctx, changed.ID)
	if err != nil && !errors.Is(err, context.Canceled) {
		d.notify.Error(err)
	}
	if u, ok := d.session.CurrentUser(); ok && HasLoanHistory(u.Role) {
		if _, err := d.catalog.LoadUserHistory(ctx); err != nil {
			d.notify.Error(err)
		}
	}
	if b == nil {
		return changed
	}
	return b
}

// ------------------ Users ------------------

func (d *Dispatcher) canManageUsers() error {
	return d.authorize(func(u User) bool { return CanManageUsers(u.Role) })
}

func (d *Dispatcher) AddUser(ctx context.Context, r Registration) (*User, error) {
	return dispatch(d, action[*User]{
		key:     "add-user",
		check:   d.canManageUsers,
		call:    func() (*User, error) { return d.users.Add(ctx, r) },
		route:   func(*User) string { return RouteUsers },
		success: "User added",
	})
}

func (d *Dispatcher) EditUser(ctx context.Context, id string, u UserUpdate) (*User, error) {
	return dispatch(d, action[*User]{
		key:     "edit-user:" + id,
		check:   d.canManageUsers,
		call:    func() (*User, error) { return d.users.Update(ctx, id, u) },
		route:   func(*User) string { return RouteUsers },
		success: "User updated",
	})
}

func (d *Dispatcher) DeleteUser(ctx context.Context, id string) error {
	_, err := dispatch(d, action[struct{}]{
		key:     "delete-user:" + id,
		check:   d.canManageUsers,
		call:    func() (struct{}, error) { return struct{}{}, d.users.Remove(ctx, id) },
		route:   func(struct{}) string { return RouteUsers },
		success: "User deleted",
	})
	return err
}
