package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library-portal/library"
)

// clock is a settable time source shared with handler goroutines.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	clock *clock
	url   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := New(tempStore(t), Options{
		UploadDir:  t.TempDir(),
		LoanPeriod: 14 * 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
		Quiet:      true,
	})
	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	srv.now = clk.Now
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{clock: clk, url: ts.URL}
}

// portal is one signed-in front end talking to the test server.
type portal struct {
	client  *library.Client
	session *library.Session
	catalog *library.Catalog
	users   *library.Directory
	d       *library.Dispatcher
}

func (e *testEnv) portal(t *testing.T) *portal {
	t.Helper()
	c := library.NewClient(e.url, 5*time.Second)
	sess, err := library.NewSession(c, library.NewMemoryStorage(), nil)
	require.NoError(t, err)
	c.SetTokenSource(sess.Token)
	p := &portal{client: c, session: sess, catalog: library.NewCatalog(c), users: library.NewDirectory(c)}
	p.d = library.NewDispatcher(sess, p.catalog, p.users, nil, nil)
	return p
}

func (e *testEnv) signUp(t *testing.T, name string, role library.Role) *portal {
	t.Helper()
	p := e.portal(t)
	_, err := p.d.Register(context.Background(), library.Registration{
		Name: name, Email: strings.ToLower(name) + "@example.com",
		Password: "pw-" + name, ConfirmPassword: "pw-" + name, Role: role,
	})
	require.NoError(t, err)
	return p
}

func TestLoginRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Alice", library.RoleMember)

	p := env.portal(t)
	_, err := p.d.Login(context.Background(), library.Credentials{Email: "alice@example.com", Password: "wrong"})
	var authErr *library.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid email or password", authErr.Message)

	u, err := p.d.Login(context.Background(), library.Credentials{Email: "ALICE@example.com", Password: "pw-Alice"})
	require.NoError(t, err)
	assert.Equal(t, library.RoleMember, u.Role)
	assert.True(t, p.session.IsAuthenticated())
}

func TestBorrowScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lib := env.signUp(t, "Lee", library.RoleLibrarian)
	mia := env.signUp(t, "Mia", library.RoleMember)
	mo := env.signUp(t, "Mo", library.RoleMember)

	created, err := lib.d.CreateBook(ctx, library.BookDraft{
		Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "SF",
		TotalCopies: library.Copies(2),
		Image:       &library.Upload{Filename: "dune.PNG", Content: strings.NewReader("img")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created.AvailableCopies)
	assert.Equal(t, library.StatusAvailable, created.Status)
	require.True(t, strings.HasPrefix(created.Image, "/uploads/"))
	assert.True(t, strings.HasSuffix(created.Image, ".png"))

	resp, err := http.Get(library.ImageURL(env.url, created.Image))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Mia takes one copy; the book stays Available for others.
	viewed, err := mia.catalog.LoadOne(ctx, created.ID)
	require.NoError(t, err)
	b, err := mia.d.BorrowBook(ctx, *viewed)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Equal(t, library.StatusAvailable, b.Status)
	assert.Len(t, mia.catalog.CurrentlyBorrowed(), 1)

	me, _ := mia.session.CurrentUser()
	assert.True(t, library.CanReturn(library.RoleMember, *b, me.ID))
	assert.False(t, library.CanReturn(library.RoleMember, *b, "someone-else"))

	// Mia cannot take a second copy.
	_, err = mia.client.BorrowBook(ctx, created.ID)
	assert.Equal(t, "You have already borrowed this book", library.ErrorMessage(err, ""))

	// Mo takes the last copy.
	viewed, err = mo.catalog.LoadOne(ctx, created.ID)
	require.NoError(t, err)
	b, err = mo.d.BorrowBook(ctx, *viewed)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCopies)
	assert.Equal(t, library.StatusBorrowed, b.Status)

	// Shrinking below the loans or deleting is refused.
	_, err = lib.client.UpdateBook(ctx, created.ID, library.BookDraft{Title: "Dune", Author: "FH", ISBN: "1", Category: "SF", TotalCopies: library.Copies(1)})
	assert.Equal(t, "Total copies cannot be less than copies on loan", library.ErrorMessage(err, ""))
	assert.Error(t, lib.d.DeleteBook(ctx, created.ID))

	// Mia returns hers.
	viewed, err = mia.catalog.LoadOne(ctx, created.ID)
	require.NoError(t, err)
	b, err = mia.d.ReturnBook(ctx, *viewed)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Empty(t, mia.catalog.CurrentlyBorrowed())
	assert.Len(t, mia.catalog.ReturnedHistory(), 1)

	_, err = mia.client.ReturnBook(ctx, created.ID)
	assert.Equal(t, "You have not borrowed this book", library.ErrorMessage(err, ""))
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lib := env.signUp(t, "Lee", library.RoleLibrarian)
	mia := env.signUp(t, "Mia", library.RoleMember)
	anon := env.portal(t)

	draft := library.BookDraft{Title: "T", Author: "A", ISBN: "I", Category: "C", TotalCopies: library.Copies(1)}
	_, err := mia.client.CreateBook(ctx, draft)
	assert.ErrorIs(t, err, library.ErrForbidden)

	_, err = anon.client.CreateBook(ctx, draft)
	assert.ErrorIs(t, err, library.ErrUnauthorized)

	b, err := lib.client.CreateBook(ctx, draft)
	require.NoError(t, err)

	_, err = lib.client.BorrowBook(ctx, b.ID)
	assert.ErrorIs(t, err, library.ErrForbidden)
	_, err = anon.client.BorrowBook(ctx, b.ID)
	assert.ErrorIs(t, err, library.ErrUnauthorized)

	_, err = lib.client.ListUsers(ctx)
	assert.ErrorIs(t, err, library.ErrForbidden)

	// anyone may browse
	books, err := anon.catalog.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
	_, err = anon.client.GetBook(ctx, "missing")
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestAdminManagesUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signUp(t, "Ada", library.RoleAdmin)

	added, err := admin.d.AddUser(ctx, library.Registration{Name: "Nia", Email: "nia@example.com", Password: "p", ConfirmPassword: "p"})
	require.NoError(t, err)
	assert.Equal(t, library.RoleMember, added.Role)
	me, _ := admin.session.CurrentUser()
	assert.Equal(t, "Ada", me.Name)

	users, err := admin.users.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	up, err := admin.d.EditUser(ctx, added.ID, library.UserUpdate{Name: "Nia B", Email: "nia@example.com", Role: library.RoleLibrarian})
	require.NoError(t, err)
	assert.Equal(t, library.RoleLibrarian, up.Role)

	require.NoError(t, admin.d.DeleteUser(ctx, added.ID))
	assert.Len(t, admin.users.Users(), 1)
	assert.ErrorIs(t, admin.d.DeleteUser(ctx, added.ID), library.ErrNotFound)
}

func TestHistoryFines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lib := env.signUp(t, "Lee", library.RoleLibrarian)
	mia := env.signUp(t, "Mia", library.RoleMember)

	b, err := lib.client.CreateBook(ctx, library.BookDraft{Title: "T", Author: "A", ISBN: "I", Category: "C", TotalCopies: library.Copies(1)})
	require.NoError(t, err)

	t0 := env.clock.Now()
	_, err = mia.client.BorrowBook(ctx, b.ID)
	require.NoError(t, err)

	env.clock.Set(t0.Add(20 * 24 * time.Hour))
	records, err := mia.client.UserHistory(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "T", records[0].Book.Title)
	assert.True(t, records[0].DueDate.Equal(t0.Add(14*24*time.Hour)))
	assert.True(t, records[0].Fine.Equal(decimal.NewFromInt(30)), "fine %s", records[0].Fine)
}
