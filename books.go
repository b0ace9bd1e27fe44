package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"library-portal/internal/output"
	"library-portal/library"
)

var booksCmd = &cobra.Command{
	Use:     "books",
	Aliases: []string{"book"},
	Short:   "Browse and manage the catalog",
}

var searchTerm string

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books, optionally filtered by title or author",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := mgr.Catalog.LoadAll(cmd.Context()); err != nil {
			return fail(err)
		}
		books := mgr.Catalog.Search(searchTerm)
		if len(books) == 0 {
			output.Muted("No books found.")
			return nil
		}
		printBooks(books)
		return nil
	},
}

func printBooks(books []library.Book) {
	output.Header(fmt.Sprintf("%-26s %-30s %-25s %-10s %s", "ID", "Title", "Author", "Status", "Copies"))
	for _, b := range books {
		fmt.Fprintln(output.Out, library.PrettyBook(b))
	}
}

var booksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one book and what you can do with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := mgr.Catalog.LoadOne(cmd.Context(), args[0])
		if err != nil {
			return fail(err)
		}
		printBook(*b)
		return nil
	},
}

func printBook(b library.Book) {
	output.Section(b.Title)
	fmt.Fprintf(output.Out, "Author:      %s\n", b.Author)
	fmt.Fprintf(output.Out, "ISBN:        %s\n", b.ISBN)
	fmt.Fprintf(output.Out, "Category:    %s\n", b.Category)
	fmt.Fprintf(output.Out, "Status:      %s\n", output.Status(b.Status))
	fmt.Fprintf(output.Out, "Copies:      %d of %d available\n", b.AvailableCopies, b.TotalCopies)
	fmt.Fprintf(output.Out, "Cover:       %s\n", mgr.ImageURL(b))
	if b.Description != "" {
		fmt.Fprintf(output.Out, "\n%s\n", b.Description)
	}

	u, ok := mgr.Session.CurrentUser()
	if !ok {
		return
	}
	fmt.Fprintln(output.Out)
	switch {
	case library.CanBorrow(u.Role, b):
		output.Info("Borrow it: library borrow %s", b.ID)
	case library.CanReturn(u.Role, b, u.ID):
		output.Info("Return it: library return %s", b.ID)
	}
	if library.CanManageBooks(u.Role) {
		output.Muted("%d active loan(s). Edit: library books edit %s   Delete: library books delete %s", len(b.Loans), b.ID, b.ID)
	}
}

// draftFlags binds the book form to command flags.
type draftFlags struct {
	title, author, isbn, category, description, image string
	total, available                                  int
}

func (f *draftFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "Title")
	fl.StringVar(&f.author, "author", "", "Author")
	fl.StringVar(&f.isbn, "isbn", "", "ISBN")
	fl.StringVar(&f.category, "category", "", "Category")
	fl.StringVar(&f.description, "description", "", "Description")
	fl.StringVar(&f.image, "image", "", "Path to a cover image")
	fl.IntVar(&f.total, "copies", 0, "Total copies")
	fl.IntVar(&f.available, "available", 0, "Available copies (defaults to total)")
}

// apply overlays the flags the user set onto d. The returned cleanup closes
// the opened image, if any.
func (f *draftFlags) apply(cmd *cobra.Command, d *library.BookDraft) (func(), error) {
	fl := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if fl.Changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("title", &d.Title, f.title)
	set("author", &d.Author, f.author)
	set("isbn", &d.ISBN, f.isbn)
	set("category", &d.Category, f.category)
	set("description", &d.Description, f.description)
	if fl.Changed("copies") {
		d.TotalCopies = library.Copies(f.total)
	}
	if fl.Changed("available") {
		d.AvailableCopies = library.Copies(f.available)
	}
	if f.image == "" {
		return func() {}, nil
	}
	file, err := os.Open(filepath.Clean(f.image))
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	d.Image = &library.Upload{Filename: filepath.Base(f.image), Content: file}
	return func() { file.Close() }, nil
}

var addFlags draftFlags

var booksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book (Librarian, Admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := guard(library.RoleLibrarian, library.RoleAdmin); err != nil {
			return err
		}
		var d library.BookDraft
		done, err := addFlags.apply(cmd, &d)
		if err != nil {
			return err
		}
		defer done()
		b, err := mgr.Dispatcher.CreateBook(cmd.Context(), d)
		if err != nil {
			return reported(err)
		}
		output.Muted("id: %s", b.ID)
		return nil
	},
}

var editFlags draftFlags

var booksEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a book; unset flags keep their current value (Librarian, Admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := guard(library.RoleLibrarian, library.RoleAdmin); err != nil {
			return err
		}
		cur, err := mgr.Catalog.LoadOne(cmd.Context(), args[0])
		if err != nil {
			return fail(err)
		}
		d := library.BookDraft{
			Title:           cur.Title,
			Author:          cur.Author,
			ISBN:            cur.ISBN,
			Description:     cur.Description,
			Category:        cur.Category,
			TotalCopies:     library.Copies(cur.TotalCopies),
			AvailableCopies: library.Copies(cur.AvailableCopies),
		}
		done, err := editFlags.apply(cmd, &d)
		if err != nil {
			return err
		}
		defer done()
		if cmd.Flags().Changed("copies") && !cmd.Flags().Changed("available") {
			// keep the copies on loan accounted for
			onLoan := cur.TotalCopies - cur.AvailableCopies
			d.AvailableCopies = library.Copies(max(*d.TotalCopies-onLoan, 0))
		}
		b, err := mgr.Dispatcher.EditBook(cmd.Context(), args[0], d)
		if err != nil {
			return reported(err)
		}
		printBook(*b)
		return nil
	},
}

var assumeYes bool

var booksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a book (Librarian, Admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := guard(library.RoleLibrarian, library.RoleAdmin); err != nil {
			return err
		}
		if !assumeYes && !confirm(fmt.Sprintf("Delete book %s?", args[0])) {
			output.Muted("Cancelled.")
			return nil
		}
		return reported(mgr.Dispatcher.DeleteBook(cmd.Context(), args[0]))
	},
}

func init() {
	booksListCmd.Flags().StringVarP(&searchTerm, "search", "s", "", "Filter by title or author")
	addFlags.bind(booksAddCmd)
	editFlags.bind(booksEditCmd)
	booksDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	booksCmd.AddCommand(booksListCmd, booksShowCmd, booksAddCmd, booksEditCmd, booksDeleteCmd)
	rootCmd.AddCommand(booksCmd)
}
