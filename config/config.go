package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"marketlens/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Server   ServerConfig   `json:"server"`
	Market   MarketConfig   `json:"market"`
	Logging  LoggingConfig  `json:"logging"`
}

type PostgresConfig struct {
	// URL takes precedence over the discrete fields when set (DATABASE_URL)
	URL             string `json:"url"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	DBName          string `json:"DBName"`
	SSLMode         string `json:"sslmode"`
	MaxConnections  int    `json:"max_connections"`
	MinConnections  int    `json:"min_connections"`
	MaxConnLifetime string `json:"max_conn_lifetime"`
	MaxConnIdleTime string `json:"max_conn_idle_time"`

	// Private fields to store parsed durations
	maxConnLifetimeDuration time.Duration
	maxConnIdleTimeDuration time.Duration
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTL      string `json:"ttl"`

	ttlDuration time.Duration
}

type ServerConfig struct {
	Port         string `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	IdleTimeout  string `json:"idle_timeout"`
	Compression  bool   `json:"compression"`

	readTimeoutDuration  time.Duration
	writeTimeoutDuration time.Duration
	idleTimeoutDuration  time.Duration
}

type MarketConfig struct {
	Timezone             string   `json:"timezone"`
	DefaultStartDate     string   `json:"default_start_date"`
	BondsStartDate       string   `json:"bonds_start_date"`
	USBondsStartDate     string   `json:"us_bonds_start_date"`
	ExcludedETFs         []string `json:"excluded_etfs"`
	OptionSymbols        []string `json:"option_symbols"`
	ShortSellHistoryDays int      `json:"short_sell_history_days"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text, json
	File   string `json:"file"`
}

// Default returns the configuration used when no file or environment value
// overrides a field.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			DBName:          "market",
			SSLMode:         "disable",
			MaxConnections:  10,
			MinConnections:  1,
			MaxConnLifetime: "1h",
			MaxConnIdleTime: "30m",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
			TTL:  "5m",
		},
		Server: ServerConfig{
			Port:         "5000",
			ReadTimeout:  "30s",
			WriteTimeout: "60s",
			IdleTimeout:  "120s",
			Compression:  true,
		},
		Market: MarketConfig{
			Timezone:             "America/New_York",
			DefaultStartDate:     "2025-01-01",
			BondsStartDate:       "2025-01-01",
			USBondsStartDate:     "2024-01-01",
			ExcludedETFs:         []string{"UVIX"},
			OptionSymbols:        []string{"GLD", "UVXY", "SPY", "QQQ", "TLT", "IWM", "KRE", "FXI", "SQQQ", "HYG", "BITO", "AMD", "TSLA", "IAU"},
			ShortSellHistoryDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig loads configuration once and handles errors internally
func GetConfig() *Config {
	once.Do(func() {
		log := logger.GetLogger()

		workDir, err := os.Getwd()
		if err != nil {
			log.Fatal("Failed to get working directory", map[string]interface{}{
				"error": err.Error(),
			})
		}

		configPath := filepath.Join(workDir, "config", "config.json")
		cfg, err := Load(configPath)
		if err != nil {
			log.Fatal("Failed to load configuration", map[string]interface{}{
				"error": err.Error(),
				"path":  configPath,
			})
		}

		log.Info("Successfully loaded config", map[string]interface{}{
			"path":      configPath,
			"port":      cfg.Server.Port,
			"redis":     cfg.Redis.Enabled,
			"timezone":  cfg.Market.Timezone,
			"log_level": cfg.Logging.Level,
		})
		instance = cfg
	})
	return instance
}

// Load reads .env (if present), the JSON file at path (if present) and then
// applies environment overrides on top of Default().
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MARKET_TIMEZONE"); v != "" {
		c.Market.Timezone = v
	}
	if v := os.Getenv("OPTION_SYMBOLS"); v != "" {
		c.Market.OptionSymbols = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// Validate checks required fields and parses duration strings
func (c *Config) Validate() error {
	if c.Postgres.URL == "" && c.Postgres.Host == "" {
		return fmt.Errorf("postgres url or host is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	for name, value := range map[string]string{
		"default_start_date":  c.Market.DefaultStartDate,
		"bonds_start_date":    c.Market.BondsStartDate,
		"us_bonds_start_date": c.Market.USBondsStartDate,
	} {
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if err := c.Postgres.ToDuration(); err != nil {
		return err
	}
	if err := c.Redis.ToDuration(); err != nil {
		return err
	}
	return c.Server.ToDuration()
}

// ConnString returns a pgx connection string
func (p *PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// ToDuration converts the string values to time.Duration after unmarshaling
func (p *PostgresConfig) ToDuration() error {
	var err error
	p.maxConnLifetimeDuration, err = time.ParseDuration(p.MaxConnLifetime)
	if err != nil {
		return fmt.Errorf("invalid max_conn_lifetime duration: %w", err)
	}

	p.maxConnIdleTimeDuration, err = time.ParseDuration(p.MaxConnIdleTime)
	if err != nil {
		return fmt.Errorf("invalid max_conn_idle_time duration: %w", err)
	}

	return nil
}

func (p *PostgresConfig) GetMaxConnLifetime() time.Duration {
	return p.maxConnLifetimeDuration
}

func (p *PostgresConfig) GetMaxConnIdleTime() time.Duration {
	return p.maxConnIdleTimeDuration
}

func (r *RedisConfig) ToDuration() error {
	var err error
	r.ttlDuration, err = time.ParseDuration(r.TTL)
	if err != nil {
		return fmt.Errorf("invalid redis ttl duration: %w", err)
	}
	return nil
}

func (r *RedisConfig) GetTTL() time.Duration {
	return r.ttlDuration
}

func (s *ServerConfig) ToDuration() error {
	var err error
	s.readTimeoutDuration, err = time.ParseDuration(s.ReadTimeout)
	if err != nil {
		return fmt.Errorf("invalid read_timeout duration: %w", err)
	}

	s.writeTimeoutDuration, err = time.ParseDuration(s.WriteTimeout)
	if err != nil {
		return fmt.Errorf("invalid write_timeout duration: %w", err)
	}

	s.idleTimeoutDuration, err = time.ParseDuration(s.IdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid idle_timeout duration: %w", err)
	}

	return nil
}

func (s *ServerConfig) GetReadTimeout() time.Duration {
	return s.readTimeoutDuration
}

func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return s.writeTimeoutDuration
}

func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return s.idleTimeoutDuration
}

// IsOptionSymbol reports whether symbol is on the options allow-list
func (m *MarketConfig) IsOptionSymbol(symbol string) bool {
	for _, s := range m.OptionSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
