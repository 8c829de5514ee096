package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/roster"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the roster",
	Long: `Add, list and remove users. Only users with the user role receive
auto-assigned tasks; admins are listed but never assigned.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user",
	Long:  `Remove a user from the roster. Tasks already assigned to them keep their assignee.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRemove,
}

func init() {
	userAddCmd.Flags().String("role", string(roster.RoleUser), "Role (user, admin)")
	userAddCmd.Flags().String("title", "", "Job title")
	userAddCmd.Flags().String("email", "", "Email address")
	userListCmd.Flags().Bool("json", false, "Output as JSON")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRemoveCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	r, err := roster.ParseRole(role)
	if err != nil {
		return err
	}
	title, _ := cmd.Flags().GetString("title")
	email, _ := cmd.Flags().GetString("email")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	u, err := rt.roster.Add(cmd.Context(), roster.User{Name: args[0], Role: r, Title: title, Email: email})
	if err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogUserAdd(u))
	fmt.Printf("added %s (%s) %s\n", u.Name, u.Role, u.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	users, err := rt.roster.List(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(users)
	}
	if len(users) == 0 {
		fmt.Println("No users. Add one with 'taskrota user add <name>'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tROLE\tTITLE\tEMAIL")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Role, u.Title, u.Email)
	}
	_ = w.Flush()
	fmt.Printf("\n%d user(s)\n", len(users))
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.roster.Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogUserRemove(args[0]))
	fmt.Printf("removed %s\n", args[0])
	return nil
}
