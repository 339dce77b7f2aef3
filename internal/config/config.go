package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPollInterval    = 1500 * time.Millisecond
	defaultPollMaxAttempts = 20
	defaultHTTPTimeout     = 10 * time.Second
	defaultAppPort         = "8081"
	defaultCloseURL        = "https://gateway-close.local/"
)

type Config struct {
	AppEnv  string
	AppPort string

	// Commerce backend (cart, orders, address book).
	APIURL       string
	ShippingURL  string
	HTTPTimeout  time.Duration
	JWTSecret    string
	DefaultEmail string

	// Payment gateway.
	GatewayURL    string
	GatewaySecret string
	ReturnURL     string
	CloseURL      string

	PollInterval    time.Duration
	PollMaxAttempts int

	// Optional attempt journal. Empty means in-memory.
	DBURL string

	SendGridAPIKey string
	MailFrom       string
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:          os.Getenv("APP_ENV"),
		AppPort:         getenv("APP_PORT", defaultAppPort),
		APIURL:          os.Getenv("API_URL"),
		ShippingURL:     os.Getenv("SHIPPING_URL"),
		HTTPTimeout:     getDuration("HTTP_TIMEOUT", defaultHTTPTimeout),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DefaultEmail:    os.Getenv("DEFAULT_EMAIL"),
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewaySecret:   os.Getenv("GATEWAY_SECRET"),
		ReturnURL:       os.Getenv("RETURN_URL"),
		CloseURL:        getenv("CLOSE_URL", defaultCloseURL),
		PollInterval:    getDuration("POLL_INTERVAL", defaultPollInterval),
		PollMaxAttempts: getInt("POLL_MAX_ATTEMPTS", defaultPollMaxAttempts),
		DBURL:           os.Getenv("DB_URL"),
		SendGridAPIKey:  os.Getenv("SENDGRID_APIKEY"),
		MailFrom:        os.Getenv("MAIL_FROM"),
	}

	if cfg.APIURL == "" {
		return nil, ErrMissingAPIURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = cfg.APIURL
	}
	if cfg.ShippingURL == "" {
		cfg.ShippingURL = cfg.APIURL
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = defaultPollMaxAttempts
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
