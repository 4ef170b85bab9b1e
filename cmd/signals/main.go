package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rxtech-lab/argo-signals/internal/config"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/version"
	"github.com/urfave/cli/v3"
)

// setup loads the environment settings and builds the logger. --log-level wins over LOG_LEVEL.
func setup(cmd *cli.Command) (config.Config, *logger.Logger, error) {
	var files []string
	if path := cmd.String("env-file"); path != "" {
		files = append(files, path)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, nil, err
	}

	level := cfg.LogLevel
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}

	log, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, log, nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "signals",
		Usage:   "Backtest the screener, export signals and send trading alerts",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load settings from this .env file instead of ./.env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error. Overrides LOG_LEVEL",
			},
		},
		Commands: []*cli.Command{
			backtestCommand(),
			exportCommand(),
			alertsCommand(),
			scheduleCommand(),
			schemaCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the engine version",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())

			return err
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
