// pipesim CLI — инструмент командной строки для запуска
// и наблюдения за pipeline runs через HTTP API.
//
// Использование:
//
//	pipesim [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run     Запуск и просмотр runs
//	events  Поток событий
//	health  Проверка API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/pipesim/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "pipesim",
		Short:         "pipesim CLI — CI/CD pipeline simulator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:5000"
	if v := os.Getenv("PIPESIM_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewEventsCmd(clientFn, outputFn),
		cli.NewHealthCmd(clientFn, outputFn),
	)

	// Ctrl+C завершает watch/tail штатно
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
