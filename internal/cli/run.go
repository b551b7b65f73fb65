package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/config"
	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/pipeline"
	"github.com/shaiso/Displacement/internal/transport"
)

// LocalOptions — параметры локального запуска pipeline.
type LocalOptions struct {
	RemoteURL       string
	Token           string
	StepTimeout     time.Duration
	LabelReassembly bool
	Extensions      []string
}

// NewRunCmd создаёт команду локального запуска pipeline:
// CLI сам вызывает удалённый сервис, без API сервера.
func NewRunCmd(outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	cfg := config.Load()
	opts := LocalOptions{
		RemoteURL:       cfg.RemoteBaseURL,
		Token:           cfg.RemoteToken,
		StepTimeout:     cfg.StepTimeout,
		LabelReassembly: cfg.LabelReassembly,
		Extensions:      cfg.JobExtensions,
	}

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run the pipeline locally for a point cloud file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			artifact, err := domain.LoadArtifact(args[0])
			if err != nil {
				return err
			}

			runner, err := NewLocalRunner(opts, logger)
			if err != nil {
				return err
			}

			unsubscribe := runner.Subscribe(func(ev domain.Event) {
				out.Progress(FormatEvent(ev))
			})
			defer unsubscribe()

			run, runErr := runner.Run(cmd.Context(), artifact)
			if run != nil {
				printRunResults(out, run)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&opts.RemoteURL, "remote-url", opts.RemoteURL, "Processing service base URL")
	cmd.Flags().StringVar(&opts.Token, "token", opts.Token, "Bearer token for the processing service")
	cmd.Flags().DurationVar(&opts.StepTimeout, "step-timeout", opts.StepTimeout, "Timeout of a single step")
	cmd.Flags().BoolVar(&opts.LabelReassembly, "label-reassembly", opts.LabelReassembly, "Include the label reassembly step")
	cmd.Flags().StringSliceVar(&opts.Extensions, "ext", opts.Extensions, "Extensions stripped from the job name")

	return cmd
}

// NewLocalRunner собирает Runner с HTTP транспортом.
func NewLocalRunner(opts LocalOptions, logger *slog.Logger) (*pipeline.Runner, error) {
	dispatcher, err := transport.NewHTTPDispatcher(transport.Config{
		BaseURL: opts.RemoteURL,
		Token:   opts.Token,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var catOpts []catalog.Option
	if opts.LabelReassembly {
		catOpts = append(catOpts, catalog.WithLabelReassembly())
	}

	return pipeline.New(pipeline.Config{
		Catalog:     catalog.Baseline(catOpts...),
		Dispatcher:  dispatcher,
		StepTimeout: opts.StepTimeout,
		Extensions:  opts.Extensions,
		Logger:      logger,
	}), nil
}

// printRunResults выводит итог run: результаты или снимок в JSON.
func printRunResults(out *Output, run *domain.Run) {
	if out.JSONMode() {
		out.JSON(run)
		return
	}

	steps := fromDomainSteps(run.Steps)
	rows := resultRows(steps, run.Results)
	if len(rows) == 0 {
		return
	}
	out.Table([]string{"STEP", "RESULT"}, rows)

	if run.Status == domain.PipelineStatusCompleted {
		out.Success(fmt.Sprintf("Job %s completed", run.JobName))
	}
}
