package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	PostgresHost     string `envconfig:"POSTGRES_HOST"     required:"true"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT"     default:"5432"`
	PostgresDB       string `envconfig:"POSTGRES_DB"       required:"true"`
	PostgresUser     string `envconfig:"POSTGRES_USER"     required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE"  default:"disable"`

	// Server
	ServerPort      string        `envconfig:"SERVER_PORT"      default:"5000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// CORS
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"*"`

	// Rate Limit（送信系、1クライアントあたりreq/min）
	RateLimitRegister int `envconfig:"RATE_LIMIT_REGISTER" default:"30"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Email（未設定なら確認メールを送らない）
	GmailUser     string `envconfig:"GMAIL_USER"`
	GmailPassword string `envconfig:"GMAIL_PASSWORD"`
	SMTPHost      string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"465"`

	// Legacy
	LegacySQLitePath string `envconfig:"LEGACY_SQLITE_PATH" default:"backend/database.db"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または空の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗しました: %w", err)
	}

	// 空文字列も未設定として扱う
	var missing []string
	if cfg.PostgresHost == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if cfg.PostgresDB == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if cfg.PostgresUser == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// DatabaseURL はlib/pq向けの接続URLを組み立てる。
// ユーザー名とパスワードはURLエスケープする。
func (c *Config) DatabaseURL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:   "/" + c.PostgresDB,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}

	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()

	return u.String()
}
