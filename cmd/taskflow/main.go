// Taskflow CLI — инструмент командной строки для работы с flows
// напрямую через хранилище.
//
// Использование:
//
//	taskflow [--store KIND] [--file PATH] [--json] <command> [flags]
//
// Команды:
//
//	types     Типы tasks
//	flow      Управление flows
//	run       Выполнение flow
//	schedule  Проверка cron расписаний
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/cli"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/steps"
	"github.com/shaiso/Taskflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	storeCfg := repo.ConfigFromEnv()
	var jsonOutput bool
	var amqpURL string

	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Taskflow CLI — dataflow task graphs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&storeCfg.Kind, "store", storeCfg.Kind, "Flow store: file, postgres, sqlite or redis")
	rootCmd.PersistentFlags().StringVar(&storeCfg.FilePath, "file", storeCfg.FilePath, "Flows file for the file store")
	rootCmd.PersistentFlags().StringVar(&storeCfg.SQLitePath, "sqlite", storeCfg.SQLitePath, "Database path for the sqlite store")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", mq.URLFromEnv(), "RabbitMQ URL for run --async")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Логи в stderr: stdout занят данными команд
	logger := telemetry.NewLogger(os.Stderr, telemetry.LogLevel(), os.Getenv("LOG_FORMAT"))

	wsFn := func(ctx context.Context) (*cli.Workspace, error) {
		return cli.OpenWorkspace(ctx, storeCfg, logger)
	}
	pubFn := func(ctx context.Context) (mq.MessagePublisher, func(), error) {
		conn, err := mq.NewConnection(amqpURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("setup topology: %w", err)
		}
		return mq.NewPublisher(conn, logger), func() { conn.Close() }, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTypesCmd(steps.DefaultRegistry(), steps.DefaultFlowRegistry(), outputFn),
		cli.NewFlowCmd(wsFn, outputFn),
		cli.NewRunCmd(wsFn, pubFn, outputFn),
		cli.NewScheduleCmd(outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
