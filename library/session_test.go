package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = User{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: RoleMember}

func TestLoginPersistsAndRestores(t *testing.T) {
	api := newFakeAPI()
	api.login = func(_ context.Context, c Credentials) (AuthResult, error) {
		assert.Equal(t, "alice@example.com", c.Email)
		return AuthResult{Token: "tok-1", User: alice}, nil
	}
	store := NewMemoryStorage()

	s, err := NewSession(api, store, nil)
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())

	u, err := s.Login(context.Background(), Credentials{Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, alice, *u)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "tok-1", s.Token())
	assert.False(t, s.Loading())
	assert.NoError(t, s.Err())

	// a fresh process picks the session back up
	restored, err := NewSession(api, store, nil)
	require.NoError(t, err)
	got, ok := restored.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, alice, *got)
	assert.Equal(t, "tok-1", restored.Token())
}

func TestLoginFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", &APIError{StatusCode: 401, Message: "Invalid email or password"}, "Invalid email or password"},
		{"no server message", errors.New("dial tcp: connection refused"), "An error occurred during login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.login = func(context.Context, Credentials) (AuthResult, error) { return AuthResult{}, tt.err }
			s, err := NewSession(api, NewMemoryStorage(), nil)
			require.NoError(t, err)

			_, err = s.Login(context.Background(), Credentials{Email: "a", Password: "b"})
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.want, authErr.Message)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, err, s.Err())
			assert.False(t, s.IsAuthenticated())

			s.ClearError()
			assert.NoError(t, s.Err())
		})
	}
}

func TestRegisterPasswordMismatchStaysLocal(t *testing.T) {
	api := newFakeAPI()
	s, err := NewSession(api, NewMemoryStorage(), nil)
	require.NoError(t, err)

	_, err = s.Register(context.Background(), Registration{Name: "A", Email: "a@x", Password: "one", ConfirmPassword: "two"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Passwords do not match", vErr.Error())
	assert.Equal(t, 0, api.count("Register"))
	assert.Equal(t, err, s.Err())
}

func TestRegisterDefaultsToMember(t *testing.T) {
	api := newFakeAPI()
	var sent Registration
	api.register = func(_ context.Context, r Registration) (AuthResult, error) {
		sent = r
		return AuthResult{Token: "t", User: User{ID: "n", Name: r.Name, Email: r.Email, Role: r.Role}}, nil
	}
	s, err := NewSession(api, NewMemoryStorage(), nil)
	require.NoError(t, err)

	u, err := s.Register(context.Background(), Registration{Name: "N", Email: "n@x", Password: "pw", ConfirmPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, sent.Role)
	assert.Equal(t, RoleMember, u.Role)
}

func TestLogoutClearsStorage(t *testing.T) {
	store := NewMemoryStorage()
	api := newFakeAPI()
	api.login = func(context.Context, Credentials) (AuthResult, error) {
		return AuthResult{Token: "tok", User: alice}, nil
	}
	s, err := NewSession(api, store, nil)
	require.NoError(t, err)
	_, err = s.Login(context.Background(), Credentials{})
	require.NoError(t, err)

	s.Logout()
	_, ok := s.CurrentUser()
	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
	for _, k := range []string{KeyToken, KeyUser} {
		_, present, _ := store.Get(k)
		assert.False(t, present, k)
	}
}

func TestCorruptPersistedUserIsDiscarded(t *testing.T) {
	store := NewMemoryStorage()
	_ = store.Set(KeyToken, "tok")
	_ = store.Set(KeyUser, `{"_id":"u1","role":"Superuser"}`)

	s, err := NewSession(newFakeAPI(), store, nil)
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
	_, present, _ := store.Get(KeyToken)
	assert.False(t, present)
}

func TestConcurrentLoginIsRefused(t *testing.T) {
	api := newFakeAPI()
	release := make(chan struct{})
	api.login = func(context.Context, Credentials) (AuthResult, error) {
		<-release
		return AuthResult{Token: "tok", User: alice}, nil
	}
	s, err := NewSession(api, NewMemoryStorage(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), Credentials{})
		done <- err
	}()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	_, err = s.Login(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.count("Login"))
	assert.True(t, s.IsAuthenticated())
}

// tokenlessStorage refuses to store the token.
type tokenlessStorage struct {
	*MemoryStorage
}

func (s tokenlessStorage) Set(key, value string) error {
	if key == KeyToken {
		return errors.New("disk full")
	}
	return s.MemoryStorage.Set(key, value)
}

func TestFailedTokenWriteLeavesNoUser(t *testing.T) {
	api := newFakeAPI()
	api.login = func(context.Context, Credentials) (AuthResult, error) {
		return AuthResult{Token: "tok-1", User: alice}, nil
	}
	store := tokenlessStorage{NewMemoryStorage()}

	s, err := NewSession(api, store, nil)
	require.NoError(t, err)
	_, err = s.Login(context.Background(), Credentials{Email: "alice@example.com", Password: "pw"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, s.IsAuthenticated())

	_, ok, err := store.Get(KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
}
