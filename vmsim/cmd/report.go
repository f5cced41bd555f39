package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/trace"
)

var reportCmd = &cobra.Command{
	Use:   "report <recording>",
	Short: "Summarize the faults and evictions of a recorded run.",
	Long: "`report` reads the sqlite recording written by `run` and prints " +
		"how faults were resolved, what was evicted, and how many faults " +
		"each process took.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, _ := cmd.Flags().GetString("manager")

		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		report, err := trace.ReadReport(cmd.Context(), reader, manager)
		if err != nil {
			return err
		}

		return printReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("manager", "VMM",
		"Name of the manager to report on, empty for all.")
}

func printReport(out io.Writer, r trace.Report) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "faults\t%d\n", r.Faults)
	fmt.Fprintf(w, "  resident\t%d\n", r.ResidentFaults)
	fmt.Fprintf(w, "  with eviction\t%d\n", r.EvictingFaults)
	for _, outcome := range sortedKeys(r.Outcomes) {
		fmt.Fprintf(w, "  %s\t%d\n", outcome, r.Outcomes[outcome])
	}

	fmt.Fprintf(w, "evictions\t%d\n", r.Evictions)
	fmt.Fprintf(w, "  dirty\t%d\n", r.DirtyEvictions)
	fmt.Fprintf(w, "  persisted\t%d\n", r.Persisted)
	for _, content := range sortedKeys(r.EvictedContent) {
		fmt.Fprintf(w, "  %s\t%d\n", content, r.EvictedContent[content])
	}

	fmt.Fprintf(w, "teardowns\t%d\n", r.Teardowns)
	fmt.Fprintf(w, "  frames freed\t%d\n", r.FramesFreed)

	for _, pid := range r.PIDs() {
		fmt.Fprintf(w, "pid %d\t%d faults\n", pid, r.FaultsPerProc[pid])
	}

	return w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
