package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	SentryDSN   string `env:"SENTRY_DSN"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"auth_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Verification links are BaseURL + /api/users/verify/<token>.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Mailer
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@localhost"`

	// Uploads
	TempDir    string `env:"TEMP_DIR" envDefault:"temp"`
	AvatarsDir string `env:"AVATARS_DIR" envDefault:"public/avatars"`

	// Audit log retention
	LogRetentionDays int `env:"LOG_RETENTION_DAYS" envDefault:"30"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}
