package library

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryLifecycle(t *testing.T) {
	api := newFakeAPI()
	api.listUsers = func(context.Context) ([]User, error) { return []User{*member, *librarian}, nil }
	api.updateUser = func(_ context.Context, id string, u UserUpdate) (*User, error) {
		return &User{ID: id, Name: u.Name, Email: u.Email, Role: u.Role}, nil
	}
	api.deleteUser = func(context.Context, string) error { return nil }
	d := NewDirectory(api)
	ctx := context.Background()

	users, err := d.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = d.Update(ctx, librarian.ID, UserUpdate{Name: "Lee", Email: "lee@x", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, d.Users()[1].Role)

	require.NoError(t, d.Remove(ctx, member.ID))
	require.NoError(t, d.Remove(ctx, member.ID))
	assert.Len(t, d.Users(), 1)
	assert.False(t, d.Loading())
	assert.NoError(t, d.Err())
}

func TestDirectoryAddRejectsMismatch(t *testing.T) {
	api := newFakeAPI()
	d := NewDirectory(api)

	_, err := d.Add(context.Background(), Registration{Name: "n", Email: "e", Password: "a", ConfirmPassword: "b"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, api.count("Register"))
	assert.Equal(t, err, d.Err())
	assert.Empty(t, d.Users())
}

func TestDirectoryStaleFailureIsNotRecorded(t *testing.T) {
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	n := 0
	api.listUsers = func(context.Context) ([]User, error) {
		mu.Lock()
		n++
		first := n == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
			return nil, errors.New("connection reset")
		}
		return []User{*admin}, nil
	}
	d := NewDirectory(api)

	done := make(chan error, 1)
	go func() {
		_, err := d.LoadAll(context.Background())
		done <- err
	}()
	<-entered

	_, err := d.LoadAll(context.Background())
	require.NoError(t, err)
	close(release)

	assert.Error(t, <-done)
	assert.Equal(t, []User{*admin}, d.Users())
	assert.NoError(t, d.Err())
}

func TestDirectoryClearError(t *testing.T) {
	api := newFakeAPI()
	api.listUsers = func(context.Context) ([]User, error) {
		return nil, &APIError{StatusCode: 403, Message: "Access denied"}
	}
	d := NewDirectory(api)

	_, err := d.LoadAll(context.Background())
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, err, d.Err())

	d.ClearError()
	assert.NoError(t, d.Err())
}
