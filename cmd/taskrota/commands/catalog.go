package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/tasks"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the task template catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task templates",
	Long: `List the templates batches are built from. Daily templates are the ones
the assignment batch creates. Set catalog_path in taskrota.yaml to use your
own catalog file.`,
	RunE: runCatalogList,
}

func init() {
	catalogListCmd.Flags().String("category", "", "Filter by category (daily, weekly, monthly)")
	catalogListCmd.Flags().Bool("json", false, "Output as JSON")
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	categoryFilter, _ := cmd.Flags().GetString("category")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	catalog, err := tasks.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	defs := catalog.All()
	if categoryFilter != "" {
		c, err := tasks.ParseCategory(categoryFilter)
		if err != nil {
			return err
		}
		defs = catalog.ByCategory(c)
	}

	if asJSON {
		return printJSON(defs)
	}
	if len(defs) == 0 {
		fmt.Println("No templates match the given filters.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tMINUTES")
	for _, d := range defs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.ID, d.Title, d.Category, d.EstimatedMinutes)
	}
	_ = w.Flush()
	fmt.Printf("\n%d template(s)\n", len(defs))
	return nil
}
