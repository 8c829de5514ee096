package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage task instances",
	Long:  `List, create, assign and update task instances.`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List task instances, most recently due first.

Use --assignee none to list unassigned tasks. --due narrows by due date:
overdue (past due and not completed), today, or week (due within 7 days).`,
	RunE: runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Long: `Create a single task, either ad hoc with --title or from a catalog
template with --template. Without --due the task gets the category's
default due date.

Examples:
  taskrota task create --title "Restock printer paper" --category weekly
  taskrota task create --template standup-notes --assignee <user-id>`,
	RunE: runTaskCreate,
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id> <user-id|none>",
	Short: "Assign or unassign a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskAssign,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <pending|in-progress|completed>",
	Short: "Change a task's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

func init() {
	taskListCmd.Flags().String("category", "", "Filter by category (daily, weekly, monthly)")
	taskListCmd.Flags().String("status", "", "Filter by status (pending, in-progress, completed)")
	taskListCmd.Flags().String("assignee", "", "Filter by user ID, or none for unassigned")
	taskListCmd.Flags().String("due", "all", "Filter by due date (all, overdue, today, week)")
	taskListCmd.Flags().String("search", "", "Match title or description")
	taskListCmd.Flags().Bool("json", false, "Output as JSON")

	taskShowCmd.Flags().Bool("json", false, "Output as JSON")

	taskCreateCmd.Flags().String("template", "", "Catalog template ID")
	taskCreateCmd.Flags().String("title", "", "Task title")
	taskCreateCmd.Flags().String("description", "", "Task description")
	taskCreateCmd.Flags().String("category", string(tasks.CategoryDaily), "Category (daily, weekly, monthly)")
	taskCreateCmd.Flags().Int("minutes", 0, "Estimated minutes")
	taskCreateCmd.Flags().String("due", "", "Due date (YYYY-MM-DD, 'YYYY-MM-DD HH:MM', RFC3339, today, tomorrow)")
	taskCreateCmd.Flags().String("assignee", "", "User ID to assign")
	taskCreateCmd.MarkFlagsMutuallyExclusive("template", "title")

	taskStatusCmd.Flags().Int("actual-minutes", 0, "Minutes actually spent (with completed)")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskAssignCmd)
	taskCmd.AddCommand(taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}

// taskFilterFromFlags builds a listing filter from the list flags.
func taskFilterFromFlags(cmd *cobra.Command) (tasks.Filter, error) {
	var f tasks.Filter
	if v, _ := cmd.Flags().GetString("category"); v != "" {
		c, err := tasks.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = c
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		s, err := tasks.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	due, _ := cmd.Flags().GetString("due")
	d, err := tasks.ParseDueFilter(due)
	if err != nil {
		return f, err
	}
	f.Due = d
	f.AssignedTo, _ = cmd.Flags().GetString("assignee")
	f.Search, _ = cmd.Flags().GetString("search")
	return f, nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	filter, err := taskFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := cmd.Context()
	list, err := rt.store.List(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No tasks match the given filters.")
		return nil
	}

	names := rt.userNames(ctx)
	loc := rt.cfg.Location()
	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tSTATUS\tASSIGNEE\tDUE")
	for _, inst := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.ID,
			truncate(inst.Title, 40),
			inst.Category,
			inst.Status,
			assigneeLabel(inst.AssignedTo, names),
			formatDue(inst.DueDate, now, loc),
		)
	}
	_ = w.Flush()
	fmt.Printf("\n%d task(s)\n", len(list))
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	inst, err := rt.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(inst)
	}

	loc := rt.cfg.Location()
	s := newStyles()
	fmt.Println(s.Title.Render(inst.Title))
	s.kv(os.Stdout, "ID", inst.ID)
	if inst.TemplateID != "" {
		s.kv(os.Stdout, "Template", inst.TemplateID)
	}
	s.kv(os.Stdout, "Category", inst.Category)
	s.kv(os.Stdout, "Status", inst.Status)
	s.kv(os.Stdout, "Assignee", assigneeLabel(inst.AssignedTo, rt.userNames(cmd.Context())))
	s.kv(os.Stdout, "Due", formatDue(inst.DueDate, time.Now(), loc))
	s.kv(os.Stdout, "Estimate", fmt.Sprintf("%d min", inst.EstimatedMinutes))
	if inst.CompletedAt != nil {
		s.kv(os.Stdout, "Completed", inst.CompletedAt.In(loc).Format("2006-01-02 15:04"))
	}
	if inst.ActualMinutes != nil {
		s.kv(os.Stdout, "Actual", fmt.Sprintf("%d min", *inst.ActualMinutes))
	}
	if inst.Description != "" {
		fmt.Println()
		fmt.Println(inst.Description)
	}
	return nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	templateID, _ := cmd.Flags().GetString("template")
	title, _ := cmd.Flags().GetString("title")
	if templateID == "" && strings.TrimSpace(title) == "" {
		return errors.New("either --title or --template is required")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := cmd.Context()
	loc := rt.cfg.Location()
	now := time.Now().In(loc)

	var inst tasks.Instance
	if templateID != "" {
		def, err := rt.catalog.Load().Get(templateID)
		if err != nil {
			return fmt.Errorf("%w\nRun 'taskrota catalog list' to see available templates", err)
		}
		inst = tasks.FromDefinition(def, tasks.DefaultDueDate(def.Category, now), "")
	} else {
		category, _ := cmd.Flags().GetString("category")
		c, err := tasks.ParseCategory(category)
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		minutes, _ := cmd.Flags().GetInt("minutes")
		inst = tasks.Instance{
			Title:            strings.TrimSpace(title),
			Description:      description,
			Category:         c,
			EstimatedMinutes: minutes,
			DueDate:          tasks.DefaultDueDate(c, now),
			Status:           tasks.StatusPending,
		}
	}

	if due, _ := cmd.Flags().GetString("due"); due != "" {
		inst.DueDate, err = parseDueInput(due, now, loc)
		if err != nil {
			return err
		}
	}
	if assignee, _ := cmd.Flags().GetString("assignee"); assignee != "" {
		if err := requireUser(ctx, rt.roster, assignee); err != nil {
			return err
		}
		inst.AssignedTo = assignee
	}

	created, err := rt.store.Create(ctx, inst)
	if err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogTaskCreate(created))
	fmt.Printf("created task %s (%s, due %s)\n", created.ID, created.Title, formatDue(created.DueDate, now, loc))
	return nil
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := cmd.Context()
	userID := args[1]
	if userID == tasks.Unassigned {
		userID = ""
	} else if err := requireUser(ctx, rt.roster, userID); err != nil {
		return err
	}
	if err := rt.store.Assign(ctx, args[0], userID); err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogTaskAssign(args[0], userID))
	if userID == "" {
		fmt.Printf("task %s unassigned\n", args[0])
	} else {
		fmt.Printf("task %s assigned to %s\n", args[0], userID)
	}
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	status, err := tasks.ParseStatus(args[1])
	if err != nil {
		return err
	}
	var actual *int
	if cmd.Flags().Changed("actual-minutes") {
		n, _ := cmd.Flags().GetInt("actual-minutes")
		if n < 0 {
			return fmt.Errorf("--actual-minutes must not be negative")
		}
		actual = &n
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.store.SetStatus(cmd.Context(), args[0], status, actual); err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogTaskStatus(args[0], status))
	fmt.Printf("task %s is now %s\n", args[0], status)
	return nil
}

func requireUser(ctx context.Context, r *roster.Roster, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return fmt.Errorf("%w: %s\nRun 'taskrota user list' to see user IDs", err, id)
		}
		return err
	}
	return nil
}

func assigneeLabel(userID string, names map[string]string) string {
	if userID == "" {
		return "-"
	}
	if name := names[userID]; name != "" {
		return name
	}
	return shortID(userID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
