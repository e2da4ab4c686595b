// Package config loads the service configuration. Values come from built-in
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is passed explicitly to every constructor that needs credentials or
// endpoints; nothing in the module reads configuration from globals.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Mpesa    MpesaConfig    `yaml:"mpesa"`
	Manual   ManualConfig   `yaml:"manual"`
	Render   RenderConfig   `yaml:"render"`
	Log      LogConfig      `yaml:"log"`
	Seed     bool           `yaml:"seed"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	// BaseURL is used to build Stripe return URLs.
	BaseURL        string        `yaml:"base_url"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AdminToken     string        `yaml:"admin_token"`
	GateRateLimit  int           `yaml:"gate_rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	EventTTL time.Duration `yaml:"event_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type StripeConfig struct {
	BaseURL   string        `yaml:"base_url"`
	SecretKey string        `yaml:"secret_key"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MpesaConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ShortCode      string        `yaml:"short_code"`
	PassKey        string        `yaml:"pass_key"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	CallbackURL    string        `yaml:"callback_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ManualConfig describes the paybill buyers pay to out of band.
type ManualConfig struct {
	Paybill string `yaml:"paybill"`
	// ConfirmToken authorises the admin confirmation trigger.
	ConfirmToken string `yaml:"confirm_token"`
}

type RenderConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
	Size      int    `yaml:"size"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

// Default returns the configuration used for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			BaseURL:        "http://localhost:8080",
			AllowedOrigins: []string{"*"},
			GateRateLimit:  60,
			RateWindow:     time.Minute,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "tickets",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379", EventTTL: 5 * time.Minute},
		Kafka: KafkaConfig{Topic: "tickets-issued"},
		Stripe: StripeConfig{
			BaseURL:  "https://api.stripe.com",
			Currency: "kes",
			Timeout:  10 * time.Second,
		},
		Mpesa: MpesaConfig{
			BaseURL: "https://sandbox.safaricom.co.ke",
			Timeout: 10 * time.Second,
		},
		Render: RenderConfig{Dir: "static/qrs", URLPrefix: "/static/qrs", Size: 256},
	}
}

// Load applies the YAML file at path (if non-empty) and then the environment
// on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.BaseURL = getEnv("BASE_URL", c.Server.BaseURL)
	c.Server.AdminToken = getEnv("ADMIN_TOKEN", c.Server.AdminToken)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = []string{brokers}
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Stripe.BaseURL = getEnv("STRIPE_BASE_URL", c.Stripe.BaseURL)
	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)

	c.Mpesa.BaseURL = getEnv("MPESA_BASE_URL", c.Mpesa.BaseURL)
	c.Mpesa.ShortCode = getEnv("MPESA_SHORTCODE", c.Mpesa.ShortCode)
	c.Mpesa.PassKey = getEnv("MPESA_PASSKEY", c.Mpesa.PassKey)
	c.Mpesa.ConsumerKey = getEnv("MPESA_CONSUMER_KEY", c.Mpesa.ConsumerKey)
	c.Mpesa.ConsumerSecret = getEnv("MPESA_CONSUMER_SECRET", c.Mpesa.ConsumerSecret)
	c.Mpesa.CallbackURL = getEnv("MPESA_CALLBACK_URL", c.Mpesa.CallbackURL)

	c.Manual.Paybill = getEnv("MANUAL_PAYBILL", c.Manual.Paybill)
	c.Manual.ConfirmToken = getEnv("MANUAL_CONFIRM_TOKEN", c.Manual.ConfirmToken)

	c.Seed = getBool("SEED", c.Seed)
	c.Log.Development = getBool("LOG_DEVELOPMENT", c.Log.Development)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
