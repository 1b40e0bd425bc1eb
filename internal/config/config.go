package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Ошибки валидации конфигурации. Сервер с небезопасным мастер-секретом
// не должен подняться вовсе.
var (
	ErrMasterSecretMissing = errors.New("config: master secret is required")
	ErrMasterSecretShort   = errors.New("config: master secret must be at least 32 characters")
	ErrMasterSecretWeak    = errors.New("config: master secret matches a known weak pattern")
)

// weakSecretRe ловит типовые заглушки, попадающие в прод из примеров.
var weakSecretRe = regexp.MustCompile(`(?i)(password|secret|changeme|default|example|12345678|master)`)

type Config struct {
	// Server-side settings
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseDSN string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	// Криптографический корень: из него выводится ключ обёртки.
	MasterSecret string `env:"MASTER_SECRET"`

	// Времена жизни токенов
	ObjectTokenTTL time.Duration `env:"OBJECT_TOKEN_TTL" envDefault:"1h"`
	KeyTokenTTL    time.Duration `env:"KEY_TOKEN_TTL" envDefault:"60s"`

	// Хранилище блобов: "fs" или "s3"
	BlobBackend string `env:"BLOB_BACKEND" envDefault:"fs"`
	BlobDir     string `env:"BLOB_DIR"`

	// S3 (используется при BLOB_BACKEND=s3)
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	// Лимиты и баны
	BanThreshold int           `env:"BAN_THRESHOLD" envDefault:"20"`
	BanWindow    time.Duration `env:"BAN_WINDOW" envDefault:"15m"`
	BanDuration  time.Duration `env:"BAN_DURATION" envDefault:"1h"`

	// Максимальный размер загружаемого объекта, МБ
	ObjectMaxSizeMB int `env:"OBJECT_MAX_SIZE_MB" envDefault:"32"`

	// Shared settings
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`

	// Client-side settings
	ServerURL    string `env:"-"`
	ClientDBPath string `env:"CLIENT_DB_PATH"`
	Version      bool   `env:"-"` // show client version and exit (flag only)
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// flags работают ТОЛЬКО если переменные из env не заданы
	// Server flags
	flag.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "адрес и порт сервера")
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "строка подключения к БД")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "секрет для подписи JWT")
	flag.StringVar(&cfg.MasterSecret, "master-secret", cfg.MasterSecret, "мастер-секрет для обёртки ключей")
	flag.StringVar(&cfg.BlobBackend, "blob-backend", cfg.BlobBackend, "хранилище шифртекстов: fs или s3")
	flag.StringVar(&cfg.BlobDir, "blob-dir", cfg.BlobDir, "каталог для fs-хранилища")
	// Shared/client flags
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base URL of the server (host:port)")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "enable HTTPS (client: prefer https scheme for BaseURL)")
	// Client flags
	flag.StringVar(&cfg.ClientDBPath, "client-db", cfg.ClientDBPath, "path to client SQLite DB")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "Show client version and exit")

	flag.Parse()

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8081"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	if cfg.BlobDir == "" {
		home, _ := os.UserHomeDir()
		cfg.BlobDir = filepath.Join(home, ".imagevault", "blobs")
	}

	// validate BaseURL: must be in "address:port" (no scheme, no path). Otherwise use default.
	hostPortRe := regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = cfg.RunAddress
	}
	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
	}

	if cfg.ClientDBPath == "" {
		home, _ := os.UserHomeDir()
		cfg.ClientDBPath = filepath.Join(home, "ivault.db")
	}
}

// ValidateMasterSecret проверяет мастер-секрет до старта сервера:
// обязателен, не короче 32 символов и не похож на заглушку.
func ValidateMasterSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMasterSecretMissing
	}
	if len(secret) < 32 {
		return ErrMasterSecretShort
	}
	if weakSecretRe.MatchString(secret) {
		return ErrMasterSecretWeak
	}
	return nil
}
