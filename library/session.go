package library

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
)

// Session holds the authenticated identity and persists it across runs.
type Session struct {
	api     AuthAPI
	storage Storage
	logger  *log.Logger

	mu      sync.Mutex
	user    *User
	token   string
	loading bool
	err     error
}

// NewSession restores any identity persisted in storage. A persisted user that
// cannot be decoded is discarded and the session starts anonymous.
func NewSession(api AuthAPI, storage Storage, logger *log.Logger) (*Session, error) {
	s := &Session{api: api, storage: storage, logger: logger}

	token, ok, err := storage.Get(KeyToken)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return s, nil
	}
	raw, ok, err := storage.Get(KeyUser)
	if err != nil {
		return nil, err
	}
	var u User
	if !ok || json.Unmarshal([]byte(raw), &u) != nil || !u.Role.Valid() {
		s.logf("discarding unreadable persisted user")
		_ = storage.Delete(KeyToken, KeyUser)
		return s, nil
	}
	s.token, s.user = token, &u
	return s, nil
}

func (s *Session) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Login authenticates with the API and becomes the given user on success.
func (s *Session) Login(ctx context.Context, c Credentials) (*User, error) {
	return s.authenticate(ctx, "An error occurred during login", func(ctx context.Context) (AuthResult, error) {
		return s.api.Login(ctx, c)
	})
}

// Register creates an account and signs in as it. Mismatched passwords are
// rejected before any network call.
func (s *Session) Register(ctx context.Context, r Registration) (*User, error) {
	if r.Password != r.ConfirmPassword {
		err := &ValidationError{Fields: []string{"confirmPassword"}, Message: "Passwords do not match"}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return nil, err
	}
	if r.Role == 0 {
		r.Role = RoleMember
	}
	return s.authenticate(ctx, "An error occurred during registration", func(ctx context.Context) (AuthResult, error) {
		return s.api.Register(ctx, r)
	})
}

func (s *Session) authenticate(ctx context.Context, fallback string, call func(context.Context) (AuthResult, error)) (*User, error) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	s.loading, s.err = true, nil
	s.mu.Unlock()

	res, err := call(ctx)
	if err == nil {
		err = s.persist(res)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		authErr := &AuthError{Message: fallback, Err: err}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			authErr.Message = apiErr.Message
		}
		s.err = authErr
		return nil, authErr
	}
	u := res.User
	s.user, s.token = &u, res.Token
	out := u
	return &out, nil
}

func (s *Session) persist(res AuthResult) error {
	raw, err := json.Marshal(res.User)
	if err != nil {
		return err
	}
	if err := s.storage.Set(KeyUser, string(raw)); err != nil {
		return err
	}
	if err := s.storage.Set(KeyToken, res.Token); err != nil {
		// a user row without its token must not survive a restart
		if derr := s.storage.Delete(KeyToken, KeyUser); derr != nil {
			s.logf("clear persisted session: %v", derr)
		}
		return err
	}
	return nil
}

// Logout forgets the identity. It never fails.
func (s *Session) Logout() {
	s.mu.Lock()
	s.user, s.token, s.err = nil, "", nil
	s.mu.Unlock()
	if err := s.storage.Delete(KeyToken, KeyUser); err != nil {
		s.logf("clear persisted session: %v", err)
	}
}

// CurrentUser returns a copy of the signed-in user.
func (s *Session) CurrentUser() (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Token is the bearer token for API calls; empty when anonymous.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
