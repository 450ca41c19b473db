package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Alpaca   AlpacaConfig
	Scanner  ScannerConfig
	Calendar CalendarConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string
	TradesTopic   string
	AlertsTopic   string
	PositionTopic string
	GroupID       string
}

// RedisConfig holds the quote cache connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QuoteTTL time.Duration
}

// AlpacaConfig holds market data credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
}

// ScannerConfig tunes the alert scan loop
type ScannerConfig struct {
	HistoryLimit    int
	ProfitRRLevel   int
	GapMinPct       decimal.Decimal
	NewHighLookback int
	HistoryDays     int
}

// CalendarConfig points at an optional market-hours YAML file
type CalendarConfig struct {
	Path string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string
	Development bool
}

// Load reads configuration from environment variables, after loading an
// optional .env file
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "tradejournal"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TradesTopic:   getEnv("KAFKA_TRADES_TOPIC", "trading.orders"),
			AlertsTopic:   getEnv("KAFKA_ALERTS_TOPIC", "trading.alerts"),
			PositionTopic: getEnv("KAFKA_POSITIONS_TOPIC", "trading.positions"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "trade-journal"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			QuoteTTL: getEnvAsDuration("REDIS_QUOTE_TTL", 30*time.Second),
		},
		Alpaca: AlpacaConfig{
			APIKey:    getEnv("ALPACA_API_KEY", ""),
			APISecret: getEnv("ALPACA_API_SECRET", ""),
			BaseURL:   getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
			Feed:      getEnv("ALPACA_FEED", "iex"),
		},
		Scanner: ScannerConfig{
			HistoryLimit:    getEnvAsInt("ALERT_HISTORY_LIMIT", 100),
			ProfitRRLevel:   getEnvAsInt("PROFIT_RR_LEVEL", 2),
			GapMinPct:       getEnvAsDecimal("GAP_MIN_PCT", decimal.RequireFromString("0.02")),
			NewHighLookback: getEnvAsInt("NEW_HIGH_LOOKBACK", 20),
			HistoryDays:     getEnvAsInt("PATTERN_HISTORY_DAYS", 45),
		},
		Calendar: CalendarConfig{
			Path: getEnv("MARKET_CALENDAR_FILE", ""),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port == "" {
		errs = append(errs, "SERVER_PORT must be set")
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		errs = append(errs, "DB_HOST and DB_NAME must be set")
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "KAFKA_BROKERS must list at least one broker")
	}
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		errs = append(errs, "ALPACA_API_KEY and ALPACA_API_SECRET must be set")
	}
	if c.Redis.QuoteTTL < 0 {
		errs = append(errs, "REDIS_QUOTE_TTL cannot be negative")
	}
	if c.Scanner.HistoryLimit <= 0 {
		errs = append(errs, "ALERT_HISTORY_LIMIT must be positive")
	}
	if c.Scanner.ProfitRRLevel < 1 {
		errs = append(errs, "PROFIT_RR_LEVEL must be at least 1")
	}
	if !c.Scanner.GapMinPct.IsPositive() {
		errs = append(errs, "GAP_MIN_PCT must be positive")
	}
	if c.Scanner.NewHighLookback < 2 {
		errs = append(errs, "NEW_HIGH_LOOKBACK must be at least 2")
	}
	if c.Scanner.HistoryDays < c.Scanner.NewHighLookback {
		errs = append(errs, "PATTERN_HISTORY_DAYS must cover NEW_HIGH_LOOKBACK")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns host:port for the HTTP listener
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v, err := decimal.NewFromString(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
