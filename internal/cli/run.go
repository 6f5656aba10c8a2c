package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "STATUS", "STARTED", "DURATION", "ERROR"}

func runRows(runs []RunResponse) [][]string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{r.ID, r.Status, r.StartedAt, formatDuration(r), r.Error}
	}
	return rows
}

var logHeaders = []string{"TIME", "LEVEL", "STEP", "MESSAGE"}

func logRows(entries []LogEntry) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.LoggedAt, e.Level, e.StepID, e.Message}
	}
	return rows
}

func formatDuration(r RunResponse) string {
	if r.CompletedAt == "" {
		return ""
	}
	return strconv.FormatInt(r.DurationMs, 10) + "ms"
}

// printRun выводит run и его лог.
func printRun(out *Output, run *RunResponse) {
	if out.jsonMode {
		out.JSON(run)
		return
	}

	out.Table(runHeaders, runRows([]RunResponse{*run}))
	if len(run.Logs) > 0 {
		fmt.Fprintln(out.w)
		out.Table(logHeaders, logRows(run.Logs))
	}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list WORKFLOW_ID",
		Short: "List runs of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out.Print(runHeaders, runRows(runs), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Execute a workflow",
		Long: `Execute a workflow and print the finished run with its log.
With --async the run is queued for a worker instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if async {
				if err := client.EnqueueRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run queued for workflow %s", args[0]))
				return nil
			}

			run, err := client.StartRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s: %s", run.ID, run.Status))
			printRun(out, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue the run for a worker")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details with its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printRun(out, run)
			return nil
		},
	}
}
