package library

import (
	"fmt"
	"log"
	"time"
)

// Options configures a Manager.
type Options struct {
	BaseURL   string
	StatePath string
	Timeout   time.Duration
	Navigator Navigator
	Notifier  Notifier
	Logger    *log.Logger
}

// Manager is a thin façade wiring the stores to the API and the state
// database, keeping front-end code simple.
type Manager struct {
	state *StateDB

	Client     *Client
	Session    *Session
	Catalog    *Catalog
	Users      *Directory
	Dispatcher *Dispatcher
}

// NewManager opens (or creates) the state database at opts.StatePath and
// restores any persisted session.
func NewManager(opts Options) (*Manager, error) {
	state, err := OpenStateDB(opts.StatePath)
	if err != nil {
		return nil, err
	}

	client := NewClient(opts.BaseURL, opts.Timeout)
	session, err := NewSession(client, state, opts.Logger)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	client.SetTokenSource(session.Token)

	catalog := NewCatalog(client)
	users := NewDirectory(client)
	return &Manager{
		state:      state,
		Client:     client,
		Session:    session,
		Catalog:    catalog,
		Users:      users,
		Dispatcher: NewDispatcher(session, catalog, users, opts.Navigator, opts.Notifier),
	}, nil
}

// Close closes the underlying state database.
func (m *Manager) Close() error { return m.state.Close() }

// ImageURL resolves a book image against the configured API origin.
func (m *Manager) ImageURL(b Book) string { return ImageURL(m.Client.BaseURL(), b.Image) }

// PrettyBook formats a book for lists.
func PrettyBook(b Book) string {
	return fmt.Sprintf("%-26s %-30s %-25s %-10s %d/%d", b.ID, Truncate(b.Title, 30), Truncate(b.Author, 25), b.Status, b.AvailableCopies, b.TotalCopies)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
