package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду просмотра run.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status [RUN_ID]",
		Short: "Show the current run or a run by ID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var run *RunResponse
			var err error
			if len(args) == 1 {
				run, err = client.GetRun(args[0])
			} else {
				run, err = client.CurrentRun()
			}
			if err != nil {
				return err
			}

			printRun(out, run)
			return nil
		},
	}
}

// NewHistoryCmd создаёт команду просмотра архива runs.
func NewHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "JOB", "STATUS", "FAILED_STEP", "DURATION", "FINISHED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID,
					r.JobName,
					r.Status,
					orDash(r.FailedStep),
					(time.Duration(r.DurationMS) * time.Millisecond).String(),
					orDash(r.FinishedAt),
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (COMPLETED, ABORTED)")
	cmd.Flags().StringVar(&opts.JobName, "job", "", "Filter by job name")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

// printRun выводит снимок run: шапку, шаги и результаты.
func printRun(out *Output, run *RunResponse) {
	if out.JSONMode() {
		out.JSON(run)
		return
	}

	out.Line(fmt.Sprintf("Run:    %s", orDash(run.ID)))
	out.Line(fmt.Sprintf("Job:    %s", orDash(run.JobName)))
	out.Line(fmt.Sprintf("Status: %s", run.Status))
	if run.FailedStep != "" {
		out.Line(fmt.Sprintf("Failed: %s (%s)", run.FailedStep, run.Error))
	}
	out.Line("")

	out.Table([]string{"#", "KEY", "STEP", "STATUS"}, stepRows(run.Steps))

	if rows := resultRows(run.Steps, run.Results); len(rows) > 0 {
		out.Line("")
		out.Table([]string{"STEP", "RESULT"}, rows)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
