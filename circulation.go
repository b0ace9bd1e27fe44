package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"library-portal/internal/output"
	"library-portal/library"
)

// circulate loads the book as the server has it, then runs the action on it.
func circulate(ctx context.Context, id string, run func(context.Context, library.Book) (*library.Book, error)) (*library.Book, error) {
	b, err := mgr.Catalog.LoadOne(ctx, id)
	if err != nil {
		return nil, fail(err)
	}
	out, err := run(ctx, *b)
	if err != nil {
		return nil, reported(err)
	}
	return out, nil
}

var borrowCmd = &cobra.Command{
	Use:   "borrow <book-id>",
	Short: "Borrow an available book (Member)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := guard(library.RoleMember); err != nil {
			return err
		}
		b, err := circulate(cmd.Context(), args[0], mgr.Dispatcher.BorrowBook)
		if err != nil {
			return err
		}
		u, _ := mgr.Session.CurrentUser()
		for _, l := range b.Loans {
			if l.UserID == u.ID {
				output.Info("Due %s", l.DueDate.Local().Format("Mon 2 Jan 2006"))
				break
			}
		}
		return nil
	},
}

var returnCmd = &cobra.Command{
	Use:   "return <book-id>",
	Short: "Return a book you borrowed (Member)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := guard(library.RoleMember); err != nil {
			return err
		}
		_, err := circulate(cmd.Context(), args[0], mgr.Dispatcher.ReturnBook)
		if err != nil {
			return err
		}
		if fines := mgr.Catalog.Fines(); fines.IsPositive() {
			output.Warning("Outstanding fines: $%s", fines.StringFixed(2))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show your borrowing history and fines (Member)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := guard(library.RoleMember); err != nil {
			return err
		}
		if _, err := mgr.Catalog.LoadUserHistory(cmd.Context()); err != nil {
			return fail(err)
		}
		printHistory(time.Now())
		return nil
	},
}

func printHistory(now time.Time) {
	records := mgr.Catalog.History()
	if len(records) == 0 {
		output.Muted("No borrowing history.")
		return
	}

	output.Section("Currently borrowed")
	current := mgr.Catalog.CurrentlyBorrowed()
	if len(current) == 0 {
		output.Muted("Nothing on loan.")
	}
	for _, r := range current {
		line := fmt.Sprintf("%-40s due %s", library.Truncate(title(r), 40), r.DueDate.Local().Format("2006-01-02"))
		if fine := library.CalculateFine(r.DueDate, now); fine.IsPositive() {
			output.Warning("%s  overdue %d day(s), fine $%s", line, library.OverdueDays(r.DueDate, now), fine.StringFixed(2))
			continue
		}
		fmt.Fprintln(output.Out, line)
	}

	output.Section("Returned")
	returned := mgr.Catalog.ReturnedHistory()
	if len(returned) == 0 {
		output.Muted("Nothing returned yet.")
	}
	for _, r := range returned {
		fmt.Fprintf(output.Out, "%-40s returned %s\n", library.Truncate(title(r), 40), r.ReturnedAt.Local().Format("2006-01-02"))
	}

	if fines := mgr.Catalog.Fines(); fines.IsPositive() {
		fmt.Fprintln(output.Out)
		output.Warning("Total fines: $%s", fines.StringFixed(2))
	}
}

func title(r library.BorrowRecord) string {
	if r.Book == nil {
		return "(removed book)"
	}
	return r.Book.Title
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the dashboard for your role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := guard()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		output.Section(fmt.Sprintf("%s dashboard", u.Role))

		switch {
		case library.HasLoanHistory(u.Role):
			if _, err := mgr.Catalog.LoadUserHistory(ctx); err != nil {
				return fail(err)
			}
			fmt.Fprintf(output.Out, "Borrowed now: %d\n", len(mgr.Catalog.CurrentlyBorrowed()))
			fmt.Fprintf(output.Out, "Returned:     %d\n", len(mgr.Catalog.ReturnedHistory()))
			fmt.Fprintf(output.Out, "Fines:        $%s\n", mgr.Catalog.Fines().StringFixed(2))
			return nil
		default:
			if _, err := mgr.Catalog.LoadAll(ctx); err != nil {
				return fail(err)
			}
			st := library.Stats(mgr.Catalog.Books())
			fmt.Fprintf(output.Out, "Books:        %d\n", st.Total)
			fmt.Fprintf(output.Out, "Available:    %d\n", st.Available)
			fmt.Fprintf(output.Out, "Borrowed:     %d\n", st.Borrowed)
		}

		if library.CanManageUsers(u.Role) {
			users, err := mgr.Users.LoadAll(ctx)
			if err != nil {
				return fail(err)
			}
			fmt.Fprintf(output.Out, "Users:        %d\n", len(users))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(borrowCmd, returnCmd, historyCmd, dashboardCmd)
}
