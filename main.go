package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-portal/internal/config"
	"library-portal/internal/output"
	"library-portal/library"
)

var (
	verbose bool
	baseURL string

	cfg config.Config
	mgr *library.Manager

	scanner = bufio.NewScanner(os.Stdin)
)

// errReported marks failures the notifier has already printed.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:           "library",
	Short:         "Library portal client",
	Long:          "Browse the catalog, borrow and return books, and administer the library from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		var logger *log.Logger
		if verbose {
			logger = log.New(os.Stderr, "library: ", log.LstdFlags)
		}
		mgr, err = library.NewManager(library.Options{
			BaseURL:   cfg.BaseURL,
			StatePath: cfg.StateDB,
			Timeout:   cfg.Timeout,
			Navigator: output.Navigator{Verbose: verbose},
			Notifier:  output.Notifier{},
			Logger:    logger,
		})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API origin (overrides config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		output.Error("%v", err)
	}
	if mgr != nil {
		if cerr := mgr.Close(); cerr != nil && verbose {
			output.Warning("close state: %v", cerr)
		}
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// reported converts an error the dispatcher already surfaced.
func reported(err error) error {
	if err == nil || errors.Is(err, library.ErrInFlight) {
		return err
	}
	return errReported
}

// fail prints a store error and marks it reported.
func fail(err error) error {
	output.Notifier{}.Error(err)
	return errReported
}

// prompt reads one trimmed line.
func prompt(label string) (string, error) {
	fmt.Print(label)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// readPassword securely reads a password with masking
func readPassword(label string) (string, error) {
	fmt.Print(label)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

func confirm(label string) bool {
	ans, err := prompt(label + " [y/N]: ")
	if err != nil {
		return false
	}
	ans = strings.ToLower(ans)
	return ans == "y" || ans == "yes"
}

// guard mirrors the protected-screen check: unauthenticated users are sent to
// login, users without an allowed role to their own dashboard.
func guard(allowed ...library.Role) (*library.User, error) {
	u, _ := mgr.Session.CurrentUser()
	if !library.CanAccess(u, mgr.Session.IsAuthenticated(), allowed...) {
		if u == nil || !mgr.Session.IsAuthenticated() {
			output.Warning("Please log in first: library login")
			return nil, errReported
		}
		output.Warning("Not available for %s accounts. Try: library dashboard", u.Role)
		return nil, errReported
	}
	return u, nil
}
