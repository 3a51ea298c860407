// Package config описывает настройки сервисов платформы и загружает их из YAML-файла
// (путь в CONFIG_PATH) с переопределением через переменные окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура настроек.
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	HTTPServer      `yaml:"http_server"`
	RedisConnection `yaml:"redis_connection"`
	JWTToken        `yaml:"jwttoken"`
	RabbitMQ        `yaml:"rabbitmq"`
	SMTP            `yaml:"smtp"`
	Mail            `yaml:"mail"`
	Lifecycle       `yaml:"lifecycle"`
	Scheduler       `yaml:"scheduler"`
}

// Storage настройки хранилища.
type Storage struct {
	Driver                  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_DSN"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// HTTPServer настройки HTTP-сервера.
type HTTPServer struct {
	AddressHTTP  string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP  time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" env-default:"1"`
	RateBurst    int           `yaml:"rate_limit_burst" env-default:"5"`
}

// RedisConnection настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	StatusTTL    time.Duration `yaml:"status_ttl" env-default:"5m"`
}

// JWTToken настройки токенов доступа и токенов установки пароля.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
	SetupTTL     time.Duration `yaml:"setup_token_ttl" env-default:"72h"`
}

// RabbitMQ настройки брокера.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
	Workers            int           `yaml:"workers" env-default:"4"`
}

// SMTP настройки почтового сервера.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"noreply@unitopms.com"`
}

// Mail способ доставки писем: queue (RabbitMQ), smtp (напрямую) или log (только журнал).
type Mail struct {
	Mode    string        `yaml:"mode" env:"MAIL_MODE" env-default:"queue"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

// Lifecycle параметры жизненного цикла хоста.
type Lifecycle struct {
	FrontendURL        string        `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"https://unitopms.com"`
	TrialPeriod        time.Duration `yaml:"trial_period" env-default:"336h"`
	TrialWarningWindow time.Duration `yaml:"trial_warning_window" env-default:"72h"`
	DedupWindow        time.Duration `yaml:"dedup_window" env-default:"24h"`
	AccessWarningDays  []int         `yaml:"access_warning_days" env-default:"30,7,1"`
}

// Scheduler расписания периодических проверок (формат cron).
type Scheduler struct {
	DailySpec    string        `yaml:"daily_spec" env:"SCHEDULER_DAILY" env-default:"0 3 * * *"`
	WeeklySpec   string        `yaml:"weekly_spec" env:"SCHEDULER_WEEKLY" env-default:"0 9 * * 1"`
	SweepTimeout time.Duration `yaml:"sweep_timeout" env-default:"30m"`
	RunOnStart   bool          `yaml:"run_on_start" env-default:"false"`
}

// Load читает конфиг из файла path; перед этим подгружает .env, если он есть.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: load .env: %w", op, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.StorageConnectionString == "" {
			return errors.New("storage_connection_string is required for postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Mail.Mode {
	case "queue":
		if c.RabbitMQURL == "" {
			return errors.New("rabbitmq url is required for queue mail mode")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("smtp host is required for smtp mail mode")
		}
	case "log":
	default:
		return fmt.Errorf("unknown mail mode %q", c.Mail.Mode)
	}
	for _, d := range c.AccessWarningDays {
		if d <= 0 {
			return fmt.Errorf("access warning days must be positive, got %d", d)
		}
	}
	return nil
}

// String выводит конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage: driver=%s migrations=%s\n"+
			"HTTPServer: address=%s timeout=%s idle=%s\n"+
			"Redis: addr=%s db=%d\n"+
			"RabbitMQ: configured=%t workers=%d\n"+
			"Mail: mode=%s timeout=%s\n"+
			"Lifecycle: frontend=%s trial=%s\n"+
			"Scheduler: daily=%q weekly=%q\n",
		c.Env,
		c.Storage.Driver, c.MigrationsPath,
		c.AddressHTTP, c.TimeoutHTTP, c.IdleTimeout,
		c.AddressRedis, c.DB,
		c.RabbitMQURL != "", c.Workers,
		c.Mail.Mode, c.Mail.Timeout,
		c.FrontendURL, c.TrialPeriod,
		c.DailySpec, c.WeeklySpec,
	)
}
