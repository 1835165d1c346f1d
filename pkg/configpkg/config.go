// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver               string        `mapstructure:"DB_DRIVER"`
	DBSource               string        `mapstructure:"DB_SOURCE"`
	ServerAddress          string        `mapstructure:"SERVER_ADDRESS"`
	TokenSymmetricKey      string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	TokenKind              string        `mapstructure:"TOKEN_KIND"`
	SessionDuration        time.Duration `mapstructure:"SESSION_DURATION"`
	Environement           string        `mapstructure:"GO_ENV"`
	RedisURL               string        `mapstructure:"REDIS_URL"`
	IdempotencyTTL         time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	LockTimeout            time.Duration `mapstructure:"LOCK_TIMEOUT"`
	MaxDeposit             string        `mapstructure:"MAX_DEPOSIT"`
	NodeID                 int64         `mapstructure:"NODE_ID"`
	CleanupSchedule        string        `mapstructure:"CLEANUP_SCHEDULE"`
	LoginAttemptsPerMinute int           `mapstructure:"LOGIN_ATTEMPTS_PER_MINUTE"`
	CookieSecure           bool          `mapstructure:"COOKIE_SECURE"`
	SMTPHost               string        `mapstructure:"SMTP_HOST"`
	SMTPPort               string        `mapstructure:"SMTP_PORT"`
	SMTPUsername           string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword           string        `mapstructure:"SMTP_PASSWORD"`
	SenderEmail            string        `mapstructure:"SENDER_EMAIL"`
}

// Defaults are applied before the config file and the environment are read.
var defaults = map[string]any{
	"DB_DRIVER":                 "postgres",
	"SERVER_ADDRESS":            "0.0.0.0:5000",
	"TOKEN_KIND":                "paseto",
	"SESSION_DURATION":          "24h",
	"GO_ENV":                    "production",
	"IDEMPOTENCY_TTL":           "24h",
	"LOCK_TIMEOUT":              "2s",
	"MAX_DEPOSIT":               "1000000",
	"NODE_ID":                   1,
	"CLEANUP_SCHEDULE":          "@every 10m",
	"LOGIN_ATTEMPTS_PER_MINUTE": 5,
	"SMTP_PORT":                 "587",
}

// Load read configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
