// Package config loads the process settings of the alert service from the
// environment and an optional .env file.
package config

import (
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// Run modes of the alert job.
const (
	RunModeIntraday = "INTRADAY"
	RunModeEOD      = "EOD"
	RunModeBoth     = "BOTH"
)

type Config struct {
	// Email
	AlertTo       []string `env:"ALERT_TO" envSeparator:","`
	AlertFrom     string   `env:"ALERT_FROM"`
	SubjectPrefix string   `env:"SUBJECT_PREFIX" envDefault:"[FTU-DSTC Alerts] "`
	AppEnv        string   `env:"APP_ENV" envDefault:"prod"`
	SMTPHost      string   `env:"SMTP_HOST"`
	SMTPPort      int      `env:"SMTP_PORT" envDefault:"465" validate:"min=1,max=65535"`
	SMTPSecurity  string   `env:"SMTP_SECURITY" envDefault:"SSL" validate:"oneof=SSL STARTTLS NONE"`
	SMTPUser      string   `env:"SMTP_USER"`
	SMTPPass      string   `env:"SMTP_PASS"`

	// Telegram
	TelegramBotToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs   []int64 `env:"TELEGRAM_CHAT_IDS" envSeparator:","`
	TelegramAPIServer string  `env:"TELEGRAM_API_SERVER"`

	// Data and job
	DataParquetPath    string        `env:"DATA_PARQUET_PATH" envDefault:"data/market.parquet"`
	BacktestConfigPath string        `env:"BACKTEST_CONFIG"`
	RunMode            string        `env:"RUN_MODE" envDefault:"BOTH" validate:"oneof=INTRADAY EOD BOTH"`
	Tickers            []string      `env:"TICKERS" envSeparator:","`
	Timezone           string        `env:"TIMEZONE" envDefault:"Asia/Ho_Chi_Minh"`
	LookbackDays       int           `env:"LOOKBACK_DAYS" envDefault:"60" validate:"min=1"`
	JobTimeout         time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
	ForceTest          bool          `env:"FORCE_TEST"`
	DryRun             bool          `env:"DRY_RUN"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Dedupe store; Redis is used when REDIS_URL is set
	AlertDBPath  string        `env:"ALERT_DB_PATH" envDefault:"data/alerts.duckdb"`
	RedisURL     string        `env:"REDIS_URL"`
	RedisSentTTL time.Duration `env:"REDIS_SENT_TTL" envDefault:"168h"`
	HTTPMaxRetry int           `env:"HTTP_MAX_RETRY" envDefault:"3" validate:"min=1,max=10"`

	PolygonAPIKey string `env:"POLYGON_API_KEY"`
}

// Load reads the given .env files into the process environment, then parses it.
// With no files, a .env in the working directory is loaded when present.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to load env file", err)
	}

	return parse(env.Options{})
}

// FromMap parses the settings from environ only, ignoring the process environment.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid environment configuration", err)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", c.Timezone)
	}

	return nil
}

// Location is the timezone alerts and the schedule run in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && len(c.TelegramChatIDs) > 0
}

func (c Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.AlertFrom != "" && len(c.AlertTo) > 0
}

// RunsIntraday reports whether the intraday job is scheduled.
func (c Config) RunsIntraday() bool {
	return c.RunMode == RunModeIntraday || c.RunMode == RunModeBoth
}

// RunsEOD reports whether the end of day job is scheduled.
func (c Config) RunsEOD() bool {
	return c.RunMode == RunModeEOD || c.RunMode == RunModeBoth
}
