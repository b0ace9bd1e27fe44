package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"library-portal/library"
)

const maxUpload = 5 << 20

type authPayload struct {
	Token string       `json:"token"`
	User  library.User `json:"user"`
}

// serverError logs the cause and hides it from the client.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	jsonError(w, "Server error", http.StatusInternalServerError)
}

// ------------------ Auth ------------------

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in library.Credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "Invalid input", http.StatusBadRequest)
		return
	}
	u, hash, err := s.store.UserByEmail(r.Context(), in.Email)
	if errors.Is(err, errNotFound) {
		jsonError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		jsonError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	s.issue(w, r, u, http.StatusOK)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in library.Registration
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		jsonError(w, "Please fill in all required fields", http.StatusBadRequest)
		return
	}
	if in.Role == 0 {
		in.Role = library.RoleMember
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		serverError(w, r, err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), in.Name, in.Email, string(hash), in.Role)
	if errors.Is(err, errDuplicate) {
		jsonError(w, "User already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	s.issue(w, r, u, http.StatusCreated)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, u library.User, status int) {
	token, err := s.store.CreateSession(r.Context(), u.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, status, authPayload{Token: token, User: u})
}

// ------------------ Books ------------------

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.ListBooks(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	if q := r.URL.Query().Get("search"); q != "" {
		books = library.SearchBooks(books, q)
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBook(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, errNotFound) {
		jsonError(w, "Book not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// bookInput reads the multipart book form. Errors are client-facing.
func (s *Server) bookInput(r *http.Request) (BookInput, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return BookInput{}, fmt.Errorf("invalid form: %w", err)
	}
	in := BookInput{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Author:      strings.TrimSpace(r.FormValue("author")),
		ISBN:        strings.TrimSpace(r.FormValue("isbn")),
		Description: r.FormValue("description"),
		Category:    strings.TrimSpace(r.FormValue("category")),
	}
	if in.Title == "" || in.Author == "" || in.ISBN == "" || in.Category == "" || r.FormValue("totalCopies") == "" {
		return BookInput{}, errors.New("Please fill in all required fields")
	}

	total, err := strconv.Atoi(r.FormValue("totalCopies"))
	if err != nil || total < 0 {
		return BookInput{}, errors.New("totalCopies must be a non-negative integer")
	}
	in.TotalCopies = total
	in.AvailableCopies = total
	if v := r.FormValue("availableCopies"); v != "" {
		avail, err := strconv.Atoi(v)
		if err != nil || avail < 0 || avail > total {
			return BookInput{}, errors.New("availableCopies must be between 0 and totalCopies")
		}
		in.AvailableCopies = avail
	}

	image, err := s.saveUpload(r)
	if err != nil {
		return BookInput{}, err
	}
	in.Image = image
	return in, nil
}

// saveUpload stores the optional bookImage file and returns its public path.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("bookImage")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invalid image: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	out, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return "/uploads/" + name, nil
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	in, err := s.bookInput(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.store.CreateBook(r.Context(), in)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	in, err := s.bookInput(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.store.UpdateBook(r.Context(), chi.URLParam(r, "id"), in)
	switch {
	case errors.Is(err, errNotFound):
		jsonError(w, "Book not found", http.StatusNotFound)
	case errors.Is(err, errOnLoan):
		jsonError(w, "Total copies cannot be less than copies on loan", http.StatusConflict)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteBook(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, errNotFound):
		jsonError(w, "Book not found", http.StatusNotFound)
	case errors.Is(err, errOnLoan):
		jsonError(w, "Cannot delete a book with copies on loan", http.StatusConflict)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Book removed"})
	}
}

// ------------------ Circulation ------------------

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	if !library.HasLoanHistory(u.Role) {
		jsonError(w, "Only members can borrow books", http.StatusForbidden)
		return
	}
	now := s.now()
	b, err := s.store.Borrow(r.Context(), chi.URLParam(r, "id"), u.ID, now, now.Add(s.loanPeriod))
	switch {
	case errors.Is(err, errNotFound):
		jsonError(w, "Book not found", http.StatusNotFound)
	case errors.Is(err, errUnavailable):
		jsonError(w, "Book is not available", http.StatusBadRequest)
	case errors.Is(err, errDuplicate):
		jsonError(w, "You have already borrowed this book", http.StatusBadRequest)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) giveBack(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	if !library.HasLoanHistory(u.Role) {
		jsonError(w, "Only members can return books", http.StatusForbidden)
		return
	}
	b, err := s.store.Return(r.Context(), chi.URLParam(r, "id"), u.ID, s.now())
	switch {
	case errors.Is(err, errNotBorrowed):
		jsonError(w, "You have not borrowed this book", http.StatusBadRequest)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	records, err := s.store.History(r.Context(), u.ID, s.now())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ------------------ Users ------------------

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var in library.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if in.Name == "" || in.Email == "" || !in.Role.Valid() {
		jsonError(w, "Please fill in all required fields", http.StatusBadRequest)
		return
	}
	u, err := s.store.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	switch {
	case errors.Is(err, errNotFound):
		jsonError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, errDuplicate):
		jsonError(w, "Email already in use", http.StatusBadRequest)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteUser(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, errNotFound):
		jsonError(w, "User not found", http.StatusNotFound)
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "User removed"})
	}
}
