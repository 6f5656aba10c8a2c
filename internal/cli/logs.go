package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogsCmd создаёт команду просмотра логов всех runs.
func NewLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListLogsOpts

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show run logs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, total, err := client.ListLogs(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if !out.jsonMode {
				out.Table(append([]string{"RUN"}, logHeaders...), logRowsWithRun(entries))
				out.Success(fmt.Sprintf("%d of %d entries", len(entries), total))
				return nil
			}

			out.JSON(map[string]any{"data": entries, "total": total})
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Only entries of this run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Page size (default 50)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of entries to skip")

	return cmd
}

func logRowsWithRun(entries []LogEntry) [][]string {
	rows := logRows(entries)
	for i := range rows {
		rows[i] = append([]string{entries[i].RunID}, rows[i]...)
	}
	return rows
}
