package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required,notEmpty"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database  Database
	Redis     Redis
	WB        WB
	Quota     Quota
	RateLimit RateLimit
	HTTP      HTTP
	Bot       Bot
	Schedule  Schedule
}

type Database struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DB_DSN"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD"`
	Name            string        `env:"DB_NAME" envDefault:"wb_margin"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"data/bot.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"2m"`
}

// ConnString returns the DSN for the configured driver.
func (d Database) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

type Redis struct {
	// Empty Addr keeps sessions and rate limits in process.
	Addr       string        `env:"REDIS_ADDR"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type WB struct {
	BaseURL             string          `env:"WB_API_BASE_URL" envDefault:"https://content-api.wildberries.ru"`
	CommonBaseURL       string          `env:"WB_COMMON_API_BASE_URL" envDefault:"https://common-api.wildberries.ru"`
	Token               string          `env:"WB_API_TOKEN"`
	CacheTTL            time.Duration   `env:"CATEGORY_CACHE_TTL" envDefault:"1h"`
	CommissionOverrides map[int]float64 `env:"COMMISSION_OVERRIDES" envKeyValSeparator:":"`
	RequestTimeout      time.Duration   `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
}

type Quota struct {
	DefaultCommission     float64 `env:"DEFAULT_COMMISSION" envDefault:"15"`
	FreeCalculationsLimit int     `env:"FREE_CALCULATIONS_LIMIT" envDefault:"5"`
	SubscriptionPrice     int     `env:"SUBSCRIPTION_PRICE" envDefault:"149"`
	SubscriptionDays      int     `env:"SUBSCRIPTION_DAYS" envDefault:"30"`
	StorageCostPerDay     float64 `env:"STORAGE_COST_PER_DAY" envDefault:"0.16"`
	StorageDays           int     `env:"STORAGE_DAYS" envDefault:"30"`
}

// DefaultStorageCost is the storage fee suggested when the user leaves it empty.
func (q Quota) DefaultStorageCost() float64 {
	return q.StorageCostPerDay * float64(q.StorageDays)
}

type RateLimit struct {
	Requests int64         `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type HTTP struct {
	APIAddr     string   `env:"API_ADDR" envDefault:":3001"`
	MetricsAddr string   `env:"METRICS_ADDR" envDefault:":9090"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,https://mini-app-red-seven.vercel.app,https://*.vercel.app,https://*.telegram.org"`
}

type Bot struct {
	AdminIDs   []int64 `env:"ADMIN_IDS" envSeparator:","`
	MiniAppURL string  `env:"MINI_APP_URL"`
	AskReturns bool    `env:"ASK_RETURNS" envDefault:"true"`
}

type Schedule struct {
	CategoryWarm     string        `env:"CATEGORY_WARM_SCHEDULE" envDefault:"@hourly"`
	ExpiryReminder   string        `env:"EXPIRY_REMINDER_SCHEDULE" envDefault:"0 10 * * *"`
	ReminderLeadTime time.Duration `env:"EXPIRY_REMINDER_LEAD" envDefault:"72h"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	// a missing .env is fine, configuration may come from the environment
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}
	if c.Quota.FreeCalculationsLimit < 0 {
		errs = append(errs, errors.New("FREE_CALCULATIONS_LIMIT must not be negative"))
	}
	if c.Quota.DefaultCommission < 0 || c.Quota.DefaultCommission > 100 {
		errs = append(errs, errors.New("DEFAULT_COMMISSION must be within [0, 100]"))
	}
	if c.Quota.SubscriptionDays <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_DAYS must be positive"))
	}
	for id, pct := range c.WB.CommissionOverrides {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Errorf("COMMISSION_OVERRIDES: category %d has %v%%", id, pct))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Bot.AdminIDs, userID)
}
