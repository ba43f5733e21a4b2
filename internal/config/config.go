package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string `env:"ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL"` // пусто = info в production, debug иначе
	DBDSN         string `env:"DB_DSN,required,notEmpty"`
	MigrationsDir string `env:"MIGRATIONS_DIR"` // пусто = миграции, встроенные в бинарник

	// Сроки движка бронирования
	MaxLeadTime    time.Duration `env:"MAX_LEAD_TIME" envDefault:"672h"`
	ResponseWindow time.Duration `env:"RESPONSE_WINDOW" envDefault:"48h"`
	HoldTTL        time.Duration `env:"HOLD_TTL" envDefault:"15m"`
	DraftTTL       time.Duration `env:"DRAFT_TTL" envDefault:"720h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatch     int           `env:"SWEEP_BATCH" envDefault:"100"`

	// Платёжный процессор
	Currency       string  `env:"CURRENCY" envDefault:"thb"`
	OmisePublicKey string  `env:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string  `env:"OMISE_SECRET_KEY"`
	ProcessorRPS   float64 `env:"PROCESSOR_RPS" envDefault:"5"`

	// Уведомления
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	AMQPURL       string `env:"AMQP_URL"`
	AMQPExchange  string `env:"AMQP_EXCHANGE" envDefault:"marketplace.events"`
	NotifyWorkers int    `env:"NOTIFY_WORKERS" envDefault:"4"`
	NotifyQueue   int    `env:"NOTIFY_QUEUE" envDefault:"256"`

	// Чат участников
	StreamAPIKey    string `env:"STREAM_API_KEY"`
	StreamAPISecret string `env:"STREAM_API_SECRET"`

	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"5m"`
	OTelEndpoint     string        `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return Parse()
}

// Parse читает конфигурацию из переменных окружения и проверяет её
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.MaxLeadTime <= 0 {
		return fmt.Errorf("MAX_LEAD_TIME must be positive")
	}
	if c.HoldTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("HOLD_TTL and SWEEP_INTERVAL must be positive")
	}
	if (c.OmisePublicKey == "") != (c.OmiseSecretKey == "") {
		return fmt.Errorf("OMISE_PUBLIC_KEY and OMISE_SECRET_KEY must be set together")
	}
	if c.IsProduction() && c.OmiseSecretKey == "" {
		return fmt.Errorf("OMISE_SECRET_KEY is required in production")
	}
	if (c.StreamAPIKey == "") != (c.StreamAPISecret == "") {
		return fmt.Errorf("STREAM_API_KEY and STREAM_API_SECRET must be set together")
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive")
	}
	return nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
