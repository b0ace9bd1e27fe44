package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-portal/internal/config"
	"library-portal/internal/output"
	"library-portal/library"
)

// columns expected in the CSV header, in any order.
var columns = []string{"title", "author", "isbn", "category", "totalCopies", "description"}

func main() {
	path := flag.String("file", "books.csv", "CSV file with a header row")
	dryRun := flag.Bool("dry-run", false, "Validate rows without creating books")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	manager, err := library.NewManager(library.Options{
		BaseURL:   cfg.BaseURL,
		StatePath: cfg.StateDB,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	u, _ := manager.Session.CurrentUser()
	if !*dryRun && !library.CanAccess(u, manager.Session.IsAuthenticated(), library.RoleLibrarian, library.RoleAdmin) {
		fmt.Fprintln(os.Stderr, "Sign in as a Librarian or Admin first: library login")
		os.Exit(1)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer f.Close()

	drafts, err := readDrafts(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", *path, err)
		os.Exit(1)
	}
	fmt.Printf("Importing %d book(s) from %s...\n", len(drafts), *path)

	ctx := context.Background()
	successCount := 0
	errorCount := 0
	for i, d := range drafts {
		fmt.Printf("Importing: %s by %s... ", d.Title, d.Author)
		if err := library.ValidateDraft(d); err != nil {
			fmt.Printf("ERROR (row %d) - %v\n", i+2, err)
			errorCount++
			continue
		}
		if *dryRun {
			fmt.Println("OK")
			successCount++
			continue
		}
		b, err := manager.Catalog.Create(ctx, d)
		if err != nil {
			fmt.Printf("ERROR - %s\n", library.ErrorMessage(err, "create failed"))
			errorCount++
			if errors.Is(err, library.ErrUnauthorized) {
				break
			}
			continue
		}
		fmt.Printf("SUCCESS (ID: %s)\n", b.ID)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 && !*dryRun {
		if books, err := manager.Catalog.LoadAll(ctx); err == nil {
			stats := library.Stats(books)
			output.Info("Catalog: %d books, %d available, %d fully borrowed", stats.Total, stats.Available, stats.Borrowed)
		}
	}
	if errorCount > 0 {
		os.Exit(1)
	}
}

// readDrafts maps CSV rows to drafts by header name. Blank totalCopies is left
// unset so validation reports it.
func readDrafts(r io.Reader) ([]library.BookDraft, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	index := map[string]int{}
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, c := range columns[:5] {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var drafts []library.BookDraft
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		d := library.BookDraft{
			Title:       field("title"),
			Author:      field("author"),
			ISBN:        field("isbn"),
			Category:    field("category"),
			Description: field("description"),
		}
		if v := field("totalCopies"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: totalCopies %q: %w", len(drafts)+2, v, err)
			}
			d.TotalCopies = library.Copies(n)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}
