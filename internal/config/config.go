// Package config loads service settings from the environment. Variables
// use the CADENCE_ prefix (CADENCE_PORT, CADENCE_DB_DRIVER, ...), and a
// .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret    string
	TriggerToken string
	BaseURL      string
	CORSOrigins  []string

	SchedulerEnabled     bool
	SchedulerTick        time.Duration
	SchedulerConcurrency int
	SendTimeout          time.Duration

	EmailProvider  string
	PostmarkToken  string
	SendGridAPIKey string
	FromEmail      string
	FromName       string

	RateLimitRPS   float64
	RateLimitBurst int
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_path", "cadence.db")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("trigger_token", "")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("cors_origins", "")
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("scheduler_tick", time.Minute)
	v.SetDefault("scheduler_concurrency", 8)
	v.SetDefault("send_timeout", 10*time.Second)
	v.SetDefault("email_provider", "log")
	v.SetDefault("postmark_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("from_email", "noreply@localhost")
	v.SetDefault("from_name", "Cadence")
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 30)
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.SetEnvPrefix("cadence")
	v.AutomaticEnv()

	cfg := &Config{
		Port:                 v.GetString("port"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		DBDriver:             strings.ToLower(v.GetString("db_driver")),
		DBPath:               v.GetString("db_path"),
		DatabaseURL:          v.GetString("database_url"),
		JWTSecret:            v.GetString("jwt_secret"),
		TriggerToken:         v.GetString("trigger_token"),
		BaseURL:              v.GetString("base_url"),
		CORSOrigins:          splitList(v.GetString("cors_origins")),
		SchedulerEnabled:     v.GetBool("scheduler_enabled"),
		SchedulerTick:        v.GetDuration("scheduler_tick"),
		SchedulerConcurrency: v.GetInt("scheduler_concurrency"),
		SendTimeout:          v.GetDuration("send_timeout"),
		EmailProvider:        strings.ToLower(v.GetString("email_provider")),
		PostmarkToken:        v.GetString("postmark_token"),
		SendGridAPIKey:       v.GetString("sendgrid_api_key"),
		FromEmail:            v.GetString("from_email"),
		FromName:             v.GetString("from_name"),
		RateLimitRPS:         v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:       v.GetInt("rate_limit_burst"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("CADENCE_DATABASE_URL is required when db_driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db_driver %q", c.DBDriver))
	}

	switch c.EmailProvider {
	case "log":
	case "postmark":
		if c.PostmarkToken == "" {
			errs = append(errs, errors.New("CADENCE_POSTMARK_TOKEN is required when email_provider=postmark"))
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("CADENCE_SENDGRID_API_KEY is required when email_provider=sendgrid"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown email_provider %q", c.EmailProvider))
	}

	if c.SchedulerTick <= 0 {
		errs = append(errs, errors.New("scheduler_tick must be positive"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("send_timeout must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
