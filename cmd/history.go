package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sockbench/internal/report"
	"sockbench/internal/tui/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one by ID (prefix allowed)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Run %s at %s\n", rec.ID, rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("%s %s, %d/s for %s, message %q\n",
				rec.Config.Mode, rec.Config.Target, rec.Config.RequestsPerSecond, rec.Config.Duration, rec.Config.Message)
			report.PrintSummary(os.Stdout, rec.Summary)
			return nil
		}

		records, err := store.List()
		if err != nil {
			return err
		}

		if interactive, _ := cmd.Flags().GetBool("tui"); interactive && len(records) > 0 {
			_, err := tea.NewProgram(history.NewModel(records)).Run()
			return err
		}

		if len(records) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTARGET\tRPS\tSENT\tSUCCESS\tP95 (ms)")
		for _, row := range history.Rows(records) {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Bool("tui", false, "browse runs interactively")
}
