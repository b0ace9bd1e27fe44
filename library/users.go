package library

import (
	"context"
	"sync"
)

// Directory is the admin's cached list of accounts.
type Directory struct {
	users interface {
		UserAPI
		AuthAPI
	}

	mu      sync.Mutex
	list    []User
	gen     uint64
	pending int
	err     error
}

func NewDirectory(api API) *Directory {
	return &Directory{users: api, list: []User{}}
}

func (d *Directory) begin() {
	d.mu.Lock()
	d.pending++
	d.err = nil
	d.mu.Unlock()
}

// finish must be called with d.mu held. A superseded list fetch is not
// recorded as the directory's error.
func (d *Directory) finish(err error, stale bool) {
	d.pending--
	if err != nil && !stale {
		d.err = err
	}
}

// LoadAll replaces the cached account list.
func (d *Directory) LoadAll(ctx context.Context) ([]User, error) {
	d.begin()
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	users, err := d.users.ListUsers(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.finish(err, gen != d.gen)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	if gen == d.gen {
		d.list = users
	}
	return append([]User(nil), users...), nil
}

// Add creates an account on someone else's behalf. The caller's own session is
// left alone; the issued token is discarded.
func (d *Directory) Add(ctx context.Context, r Registration) (*User, error) {
	if r.Password != r.ConfirmPassword {
		err := &ValidationError{Fields: []string{"confirmPassword"}, Message: "Passwords do not match"}
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		return nil, err
	}
	if r.Role == 0 {
		r.Role = RoleMember
	}

	d.begin()
	res, err := d.users.Register(ctx, r)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.finish(err, false)
	if err != nil {
		return nil, err
	}
	d.list = append(d.list, res.User)
	d.gen++
	u := res.User
	return &u, nil
}

// Update edits an account, replacing the cached entry by identity.
func (d *Directory) Update(ctx context.Context, id string, u UserUpdate) (*User, error) {
	d.begin()
	out, err := d.users.UpdateUser(ctx, id, u)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.finish(err, false)
	if err != nil {
		return nil, err
	}
	for i := range d.list {
		if d.list[i].ID == out.ID {
			d.list[i] = *out
			d.gen++
			break
		}
	}
	res := *out
	return &res, nil
}

// Remove deletes an account; absent ids are a no-op for the cache.
func (d *Directory) Remove(ctx context.Context, id string) error {
	d.begin()
	err := d.users.DeleteUser(ctx, id)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.finish(err, false)
	if err != nil {
		return err
	}
	kept := make([]User, 0, len(d.list))
	for _, u := range d.list {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	if len(kept) != len(d.list) {
		d.list = kept
		d.gen++
	}
	return nil
}

func (d *Directory) Users() []User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]User(nil), d.list...)
}

func (d *Directory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending > 0
}

func (d *Directory) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Directory) ClearError() {
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
}
