package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// errRunGone — run больше не доступен в API: его вытеснил новый run,
// а архив не настроен. Раз его вытеснили, он завершён.
var errRunGone = errors.New("run is no longer available")

// NewSubmitCmd создаёт команду загрузки файла в API.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload a point cloud to the API and start the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait && interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			client := clientFn()
			out := outputFn()

			run, err := client.Submit(args[0])
			if IsConflict(err) {
				return fmt.Errorf("another run is in progress, try again later")
			}
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s started (job %s)", run.ID, run.JobName))

			if !wait {
				printRun(out, run)
				return nil
			}

			final, err := waitRun(cmd, client, out, run.ID, interval)
			if errors.Is(err, errRunGone) {
				out.Success(fmt.Sprintf("Run %s finished; its result was replaced by a newer run and no archive is configured", run.ID))
				return nil
			}
			if err != nil {
				return err
			}
			printRun(out, final)

			if final.Status == "ABORTED" {
				return fmt.Errorf("run aborted at step %s: %s", final.FailedStep, final.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish, printing progress")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")

	return cmd
}

// waitRun опрашивает API до завершения run, печатая смену статусов шагов.
// 404 после успешного опроса означает, что run вытеснен новым: errRunGone.
func waitRun(cmd *cobra.Command, client *Client, out *Output, id string, interval time.Duration) (*RunResponse, error) {
	seen := make(map[string]string)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	polled := false
	for {
		run, err := client.GetRun(id)
		if polled && IsNotFound(err) {
			return nil, errRunGone
		}
		if err != nil {
			return nil, err
		}
		polled = true

		for _, s := range run.Steps {
			if seen[s.Key] != s.Status && s.Status != "PENDING" {
				out.Progress(fmt.Sprintf("  %-9s %s", s.Status, s.Label))
				seen[s.Key] = s.Status
			}
		}

		if run.IsFinished() {
			return run, nil
		}

		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
