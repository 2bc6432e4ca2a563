package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// WorkOS（ログインとユーザーディレクトリ）
	WorkOSAPIKey      string
	WorkOSClientID    string
	WorkOSRedirectURI string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Blob storage（組織ロゴ）
	BlobBucket        string
	BlobRegion        string
	BlobEndpoint      string
	BlobPublicBaseURL string
	LogoMaxSize       int64

	// Rate Limit
	RateLimitGeneral  int
	RateLimitOrgWrite int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルが存在する場合に環境変数へ読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが無い場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.WorkOSAPIKey = os.Getenv("WORKOS_API_KEY")
	if cfg.WorkOSAPIKey == "" {
		missing = append(missing, "WORKOS_API_KEY")
	}

	cfg.WorkOSClientID = os.Getenv("WORKOS_CLIENT_ID")
	if cfg.WorkOSClientID == "" {
		missing = append(missing, "WORKOS_CLIENT_ID")
	}

	cfg.WorkOSRedirectURI = os.Getenv("WORKOS_REDIRECT_URI")
	if cfg.WorkOSRedirectURI == "" {
		missing = append(missing, "WORKOS_REDIRECT_URI")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.BlobBucket = os.Getenv("BLOB_BUCKET")
	if cfg.BlobBucket == "" {
		missing = append(missing, "BLOB_BUCKET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)

	cfg.BlobRegion = getEnvString("BLOB_REGION", "us-east-1")
	cfg.BlobEndpoint = getEnvString("BLOB_ENDPOINT", "")
	cfg.BlobPublicBaseURL = getEnvString("BLOB_PUBLIC_BASE_URL", defaultPublicBaseURL(cfg))
	cfg.LogoMaxSize = getEnvInt64("LOGO_MAX_SIZE", 5242880)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOrgWrite = getEnvInt("RATE_LIMIT_ORG_WRITE", 20)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// defaultPublicBaseURL はBLOB_PUBLIC_BASE_URL未設定時の公開URLを返す。
// エンドポイント指定時（MinIO等）はパススタイル、未指定時はS3の仮想ホストスタイル。
func defaultPublicBaseURL(cfg *Config) string {
	if cfg.BlobEndpoint != "" {
		return strings.TrimRight(cfg.BlobEndpoint, "/") + "/" + cfg.BlobBucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.BlobBucket, cfg.BlobRegion)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
