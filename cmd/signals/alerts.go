package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rxtech-lab/argo-signals/internal/config"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/notify"
	"github.com/rxtech-lab/argo-signals/internal/outbox"
	"github.com/rxtech-lab/argo-signals/internal/pipeline"
	"github.com/rxtech-lab/argo-signals/internal/scheduler"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// openStore picks Redis when REDIS_URL is set and the DuckDB file otherwise.
// Dry runs use a throwaway in-memory store.
func openStore(ctx context.Context, cfg config.Config, dryRun bool) (outbox.Store, error) {
	if dryRun {
		return outbox.NewDuckDBStore("")
	}

	if cfg.RedisURL != "" {
		return outbox.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisSentTTL)
	}

	return outbox.NewDuckDBStore(cfg.AlertDBPath)
}

// buildChannels returns the configured channels. Dry runs and setups without any
// channel only log alerts.
func buildChannels(cfg config.Config, log *logger.Logger, dryRun bool) ([]notify.Channel, error) {
	if dryRun {
		return []notify.Channel{notify.NewLogChannel(log)}, nil
	}

	var channels []notify.Channel

	if cfg.TelegramEnabled() {
		telegram, err := notify.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramChatIDs, cfg.TelegramAPIServer)
		if err != nil {
			return nil, err
		}

		channels = append(channels, telegram)
	}

	if cfg.EmailEnabled() {
		email, err := notify.NewEmailChannel(notify.EmailConfig{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Security:      cfg.SMTPSecurity,
			Username:      cfg.SMTPUser,
			Password:      cfg.SMTPPass,
			From:          cfg.AlertFrom,
			To:            cfg.AlertTo,
			SubjectPrefix: cfg.SubjectPrefix,
			Env:           cfg.AppEnv,
		})
		if err != nil {
			return nil, err
		}

		channels = append(channels, email)
	}

	if len(channels) == 0 {
		log.Warn("No notification channel configured, alerts are only logged")

		channels = append(channels, notify.NewLogChannel(log))
	}

	return channels, nil
}

// alertService is everything a run needs, plus what has to be closed afterwards.
type alertService struct {
	runner *pipeline.Runner
	router *notify.Router
	store  outbox.Store
}

func (s *alertService) Close() error {
	return s.store.Close()
}

func newAlertService(ctx context.Context, cfg config.Config, log *logger.Logger, dryRun, forceTest bool) (*alertService, error) {
	engineConfig, err := loadEngineConfig(cfg.BacktestConfigPath)
	if err != nil {
		return nil, err
	}

	channels, err := buildChannels(cfg, log, dryRun)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, dryRun)
	if err != nil {
		return nil, err
	}

	router := notify.NewRouter(store, log, cfg.HTTPMaxRetry, channels...)

	runner := pipeline.NewRunner(pipeline.Options{
		DataPath:     cfg.DataParquetPath,
		Engine:       engineConfig,
		Location:     cfg.Location(),
		LookbackDays: cfg.LookbackDays,
		Tickers:      cfg.Tickers,
		ForceTest:    forceTest,
	}, router, log)

	log.Info("Alert service ready",
		zap.Strings("channels", router.Channels()),
		zap.String("data", cfg.DataParquetPath),
		zap.Bool("redis", cfg.RedisURL != "" && !dryRun),
		zap.Bool("dry_run", dryRun),
	)

	return &alertService{runner: runner, router: router, store: store}, nil
}

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "Generate today's alerts once and send them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "INTRADAY or EOD",
				Value: pipeline.ModeEOD,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log alerts instead of sending them. Overrides DRY_RUN",
			},
			&cli.BoolFlag{
				Name:  "force-test",
				Usage: "Send a single test alert. Overrides FORCE_TEST",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			defer log.Sync()

			dryRun := cfg.DryRun || cmd.Bool("dry-run")
			forceTest := cfg.ForceTest || cmd.Bool("force-test")

			service, err := newAlertService(ctx, cfg, log, dryRun, forceTest)
			if err != nil {
				return err
			}
			defer service.Close()

			report, err := service.runner.RunOnce(ctx, strings.ToUpper(cmd.String("mode")))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.Root().Writer, renderReport(report))

			return err
		},
	}
}

// registerJobs adds the intraday and EOD jobs selected by RUN_MODE.
func registerJobs(runner *scheduler.Runner, cfg config.Config, service *alertService) (int, error) {
	jobs := []struct {
		mode    string
		spec    string
		enabled bool
	}{
		{pipeline.ModeIntraday, scheduler.IntradaySpec, cfg.RunsIntraday()},
		{pipeline.ModeEOD, scheduler.EODSpec, cfg.RunsEOD()},
	}

	registered := 0

	for _, job := range jobs {
		if !job.enabled {
			continue
		}

		mode := job.mode

		_, err := runner.Add(strings.ToLower(mode), job.spec, func(ctx context.Context) error {
			_, err := service.runner.RunOnce(ctx, mode)

			return err
		})
		if err != nil {
			return registered, err
		}

		registered++
	}

	return registered, nil
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the intraday and end of day jobs on their cron schedule until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log alerts instead of sending them. Overrides DRY_RUN",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			defer log.Sync()

			service, err := newAlertService(ctx, cfg, log, cfg.DryRun || cmd.Bool("dry-run"), cfg.ForceTest)
			if err != nil {
				return err
			}
			defer service.Close()

			runner := scheduler.New(log, cfg.Location(), cfg.JobTimeout)
			if _, err := registerJobs(runner, cfg, service); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner.Start(ctx)

			return nil
		},
	}
}
