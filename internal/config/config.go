package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	MoneyFlowTTLSecs int

	AuthSecret string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	RolloverInterval    time.Duration
	RolloverBusinessIDs []string

	LogLevel  string
	LogFormat string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("MONEY_FLOW_TTL_SECONDS", "300"))
	if err != nil || ttl < 1 {
		ttl = 300
	}
	interval, err := time.ParseDuration(getEnv("ROLLOVER_INTERVAL", "1h"))
	if err != nil {
		interval = 0
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		MoneyFlowTTLSecs:    ttl,
		AuthSecret:          strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AMQPURL:             strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:           getEnv("AMQP_QUEUE", "sale_events"),
		RolloverInterval:    interval,
		RolloverBusinessIDs: splitList(os.Getenv("ROLLOVER_BUSINESS_IDS")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) MoneyFlowTTL() time.Duration {
	return time.Duration(c.MoneyFlowTTLSecs) * time.Second
}

// Validate reports every problem at once rather than stopping at the first.
func (c Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %q: must be 1-65535", c.Port))
	}
	if c.RedisDB < 0 {
		problems = append(problems, fmt.Sprintf("invalid REDIS_DB %d", c.RedisDB))
	}
	if c.AMQPURL != "" {
		parsed, err := url.Parse(c.AMQPURL)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL: %v", err))
		case parsed.Scheme != "amqp" && parsed.Scheme != "amqps":
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL scheme %q: must be amqp or amqps", parsed.Scheme))
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			problems = append(problems, "AMQP_EXCHANGE and AMQP_QUEUE must be set when AMQP_URL is provided")
		}
	}
	if c.RolloverInterval < time.Minute {
		problems = append(problems, "ROLLOVER_INTERVAL must be a duration of at least 1m")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("invalid LOG_FORMAT %q: must be json or text", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
