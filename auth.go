package main

import (
	"github.com/spf13/cobra"

	"library-portal/internal/output"
	"library-portal/library"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		email := loginEmail
		if email == "" {
			if email, err = prompt("Email: "); err != nil {
				return err
			}
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		u, err := mgr.Dispatcher.Login(cmd.Context(), library.Credentials{Email: email, Password: password})
		if err != nil {
			return reported(err)
		}
		output.Success("Welcome, %s (%s)", u.Name, u.Role)
		return nil
	},
}

var registerRole string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, err := library.ParseRole(registerRole)
		if err != nil {
			return err
		}
		r, err := readRegistration(role)
		if err != nil {
			return err
		}
		u, err := mgr.Dispatcher.Register(cmd.Context(), r)
		if err != nil {
			return reported(err)
		}
		output.Success("Account created. Welcome, %s (%s)", u.Name, u.Role)
		return nil
	},
}

// readRegistration prompts for the sign-up form.
func readRegistration(role library.Role) (library.Registration, error) {
	r := library.Registration{Role: role}
	var err error
	if r.Name, err = prompt("Name: "); err != nil {
		return r, err
	}
	if r.Email, err = prompt("Email: "); err != nil {
		return r, err
	}
	if r.Password, err = readPassword("Password: "); err != nil {
		return r, err
	}
	if r.ConfirmPassword, err = readPassword("Confirm password: "); err != nil {
		return r, err
	}
	return r, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		mgr.Dispatcher.Logout()
		output.Success("Logged out")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		u, err := guard()
		if err != nil {
			return err
		}
		output.Info("%s <%s>", u.Name, u.Email)
		output.Muted("role: %s   id: %s   api: %s", u.Role, u.ID, mgr.Client.BaseURL())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	registerCmd.Flags().StringVar(&registerRole, "role", library.RoleMember.String(), "Account role (Member, Librarian or Admin)")
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
