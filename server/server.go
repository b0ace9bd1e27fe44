// Package server is a small SQLite-backed implementation of the library REST
// API used by the client package, suitable for local runs and tests.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	"library-portal/library"
)

// Options tunes a Server.
type Options struct {
	UploadDir      string
	LoanPeriod     time.Duration
	AllowedOrigins []string
	BcryptCost     int
	// Quiet disables request logging.
	Quiet bool
}

type Server struct {
	store      *Store
	uploadDir  string
	loanPeriod time.Duration
	cost       int
	origins    []string
	quiet      bool
	now        func() time.Time
}

func New(store *Store, opts Options) *Server {
	s := &Server{
		store:      store,
		uploadDir:  opts.UploadDir,
		loanPeriod: opts.LoanPeriod,
		cost:       opts.BcryptCost,
		origins:    opts.AllowedOrigins,
		quiet:      opts.Quiet,
		now:        time.Now,
	}
	if s.uploadDir == "" {
		s.uploadDir = "uploads"
	}
	if s.loanPeriod <= 0 {
		s.loanPeriod = 14 * 24 * time.Hour
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if len(s.origins) == 0 {
		s.origins = []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173"}
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	if !s.quiet {
		mux.Use(chimw.Logger)
	}
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Post("/auth/login", s.login)
	mux.Post("/auth/register", s.register)

	mux.Route("/books", func(r chi.Router) {
		r.Get("/", s.listBooks)
		r.Get("/{id}", s.getBook)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/user/history", s.history)
			r.Post("/{id}/borrow", s.borrow)
			r.Post("/{id}/return", s.giveBack)

			r.With(requireRole(library.CanManageBooks)).Post("/", s.createBook)
			r.With(requireRole(library.CanManageBooks)).Put("/{id}", s.updateBook)
			r.With(requireRole(library.CanManageBooks)).Delete("/{id}", s.deleteBook)
		})
	})

	mux.Route("/users", func(r chi.Router) {
		r.Use(s.requireAuth, requireRole(library.CanManageUsers))
		r.Get("/", s.listUsers)
		r.Put("/{id}", s.updateUser)
		r.Delete("/{id}", s.deleteUser)
	})

	mux.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	return mux
}

// ---------------------------------------------------------------------------
// Auth middleware
// ---------------------------------------------------------------------------

type ctxKeyUser struct{}

func withUser(ctx context.Context, u library.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

func userFromContext(ctx context.Context) (library.User, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(library.User)
	return u, ok
}

// requireAuth resolves the bearer token to a user and injects it into the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			jsonError(w, "Not authorized, no token", http.StatusUnauthorized)
			return
		}
		u, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			jsonError(w, "Not authorized, token failed", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

// requireRole gates a route on a role predicate shared with the client.
func requireRole(allow func(library.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := userFromContext(r.Context())
			if !ok {
				jsonError(w, "Not authorized", http.StatusUnauthorized)
				return
			}
			if !allow(u.Role) {
				jsonError(w, "Access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"message": message})
}
