package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"library-portal/internal/output"
	"library-portal/library"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer accounts (Admin)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		_, err := guard(library.RoleAdmin)
		return err
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		users, err := mgr.Users.LoadAll(cmd.Context())
		if err != nil {
			return fail(err)
		}
		if len(users) == 0 {
			output.Muted("No users found.")
			return nil
		}
		output.Header(fmt.Sprintf("%-36s %-25s %-30s %s", "ID", "Name", "Email", "Role"))
		for _, u := range users {
			fmt.Fprintf(output.Out, "%-36s %-25s %-30s %s\n", u.ID, library.Truncate(u.Name, 25), library.Truncate(u.Email, 30), u.Role)
		}
		return nil
	},
}

var addRole string

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account without signing in as it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, err := library.ParseRole(addRole)
		if err != nil {
			return err
		}
		r, err := readRegistration(role)
		if err != nil {
			return err
		}
		u, err := mgr.Dispatcher.AddUser(cmd.Context(), r)
		if err != nil {
			return reported(err)
		}
		output.Muted("id: %s", u.ID)
		return nil
	},
}

var (
	editName  string
	editEmail string
	editRole  string
)

var usersEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an account; unset flags keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		users, err := mgr.Users.LoadAll(ctx)
		if err != nil {
			return fail(err)
		}
		var cur *library.User
		for i := range users {
			if users[i].ID == args[0] {
				cur = &users[i]
				break
			}
		}
		if cur == nil {
			return fmt.Errorf("user %s not found", args[0])
		}

		in := library.UserUpdate{Name: cur.Name, Email: cur.Email, Role: cur.Role}
		fl := cmd.Flags()
		if fl.Changed("name") {
			in.Name = editName
		}
		if fl.Changed("email") {
			in.Email = editEmail
		}
		if fl.Changed("role") {
			if in.Role, err = library.ParseRole(editRole); err != nil {
				return err
			}
		}
		u, err := mgr.Dispatcher.EditUser(ctx, args[0], in)
		if err != nil {
			return reported(err)
		}
		output.Muted("%s <%s> %s", u.Name, u.Email, u.Role)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes && !confirm(fmt.Sprintf("Delete user %s?", args[0])) {
			output.Muted("Cancelled.")
			return nil
		}
		return reported(mgr.Dispatcher.DeleteUser(cmd.Context(), args[0]))
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&addRole, "role", library.RoleMember.String(), "Account role")
	usersEditCmd.Flags().StringVar(&editName, "name", "", "Name")
	usersEditCmd.Flags().StringVar(&editEmail, "email", "", "Email")
	usersEditCmd.Flags().StringVar(&editRole, "role", "", "Role")
	usersDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersEditCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}
