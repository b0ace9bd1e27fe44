package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client speaks the library REST API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token func() string
}

var _ API = (*Client)(nil)

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTokenSource installs the function supplying the bearer token per request.
func (c *Client) SetTokenSource(fn func() string) {
	c.mu.Lock()
	c.token = fn
	c.mu.Unlock()
}

// BaseURL is the API origin, also used to resolve image paths.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return ""
	}
	return c.token()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Message
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrBadResponse, method, path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// ------------------ Auth ------------------

// authResponse accepts both {token, user:{...}} and the flattened
// {token, _id, name, email, role} payload.
type authResponse struct {
	Token  string `json:"token"`
	Nested *User  `json:"user"`
	User
}

func (r authResponse) result() (AuthResult, error) {
	if r.Token == "" {
		return AuthResult{}, fmt.Errorf("%w: missing token", ErrBadResponse)
	}
	u := r.User
	if r.Nested != nil {
		u = *r.Nested
	}
	return AuthResult{Token: r.Token, User: u}, nil
}

func (c *Client) Login(ctx context.Context, cr Credentials) (AuthResult, error) {
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", cr, &resp); err != nil {
		return AuthResult{}, err
	}
	return resp.result()
}

func (c *Client) Register(ctx context.Context, r Registration) (AuthResult, error) {
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", r, &resp); err != nil {
		return AuthResult{}, err
	}
	return resp.result()
}

// ------------------ Books ------------------

func bookPath(id string, suffix ...string) string {
	return "/books/" + url.PathEscape(id) + strings.Join(suffix, "")
}

// ListBooks accepts either a bare array or a {"books": [...]} envelope.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/books", nil, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		var books []Book
		if err := json.Unmarshal(trimmed, &books); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		return books, nil
	case bytes.HasPrefix(trimmed, []byte("{")):
		var env struct {
			Books *[]Book `json:"books"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		if env.Books == nil {
			return nil, ErrBadResponse
		}
		return *env.Books, nil
	}
	return nil, ErrBadResponse
}

func (c *Client) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	if err := c.doJSON(ctx, http.MethodGet, bookPath(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// bookForm encodes a draft as the multipart form the API expects.
func bookForm(d BookDraft) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"title", d.Title},
		{"author", d.Author},
		{"isbn", d.ISBN},
		{"description", d.Description},
		{"category", d.Category},
	}
	if d.TotalCopies != nil {
		fields = append(fields, [2]string{"totalCopies", strconv.Itoa(*d.TotalCopies)})
	}
	if d.AvailableCopies != nil {
		fields = append(fields, [2]string{"availableCopies", strconv.Itoa(*d.AvailableCopies)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if d.Image != nil && d.Image.Content != nil {
		part, err := w.CreateFormFile("bookImage", d.Image.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, d.Image.Content); err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) sendBook(ctx context.Context, method, path string, d BookDraft) (*Book, error) {
	body, contentType, err := bookForm(d)
	if err != nil {
		return nil, err
	}
	var b Book
	if err := c.do(ctx, method, path, body, contentType, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CreateBook(ctx context.Context, d BookDraft) (*Book, error) {
	return c.sendBook(ctx, http.MethodPost, "/books", d)
}

func (c *Client) UpdateBook(ctx context.Context, id string, d BookDraft) (*Book, error) {
	return c.sendBook(ctx, http.MethodPut, bookPath(id), d)
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, bookPath(id), nil, nil)
}

func (c *Client) BorrowBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	if err := c.doJSON(ctx, http.MethodPost, bookPath(id, "/borrow"), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ReturnBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	if err := c.doJSON(ctx, http.MethodPost, bookPath(id, "/return"), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) UserHistory(ctx context.Context) ([]BorrowRecord, error) {
	var records []BorrowRecord
	if err := c.doJSON(ctx, http.MethodGet, "/books/user/history", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ------------------ Users ------------------

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, u UserUpdate) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(id), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// IsNetworkError reports whether err never produced an HTTP response.
func IsNetworkError(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr) && !errors.Is(err, ErrBadResponse)
}
