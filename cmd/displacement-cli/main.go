// Displacement CLI — инструмент командной строки для запуска pipeline
// обработки облаков точек: локально или через HTTP API.
//
// Использование:
//
//	displacement [--api-url URL] [--json] [--verbose] <command> [flags]
//
// Команды:
//
//	run      Локальный запуск pipeline для файла
//	submit   Загрузка файла в API сервер
//	status   Текущий run на API сервере
//	history  Архив завершённых runs
//	steps    Каталог шагов
//	events   Поток событий из RabbitMQ
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Displacement/internal/cli"
	"github.com/shaiso/Displacement/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var verbose bool

	// Логи CLI идут в stderr, чтобы не смешиваться с выводом команд
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := telemetry.NewLogger(os.Stderr, "text", level)

	rootCmd := &cobra.Command{
		Use:           "displacement",
		Short:         "Displacement CLI — point cloud processing pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn, logger),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewHistoryCmd(clientFn, outputFn),
		cli.NewStepsCmd(clientFn, outputFn),
		cli.NewEventsCmd(outputFn, logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
