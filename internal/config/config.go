// config предоставляет структуру конфигурации клиента Cheffrey и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые бэкенды хранилища учётных данных.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config — корневая конфигурация клиента.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	S3      S3Config      `yaml:"s3"`
	Photo   PhotoConfig   `yaml:"photo"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
	Watch   WatchConfig   `yaml:"watch"`
}

// APIConfig — параметры удалённого REST API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" env:"API_BASE_URL" env-default:"https://www.cheffrey.org/api"`
	Timeout   time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"10s"`
	UserAgent string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"cheffrey-cli"`
}

// SessionConfig — параметры сессии и обновления токена.
type SessionConfig struct {
	// ExpiryBuffer — запас до истечения access-токена, при котором он считается просроченным.
	ExpiryBuffer time.Duration `yaml:"expiry_buffer" env:"SESSION_EXPIRY_BUFFER" env-default:"5m"`
	// ProactiveRefresh — обновлять токен до отправки запроса, а не только по 401.
	ProactiveRefresh bool `yaml:"proactive_refresh" env:"SESSION_PROACTIVE_REFRESH" env-default:"false"`
}

// StoreConfig — настройки хранилища учётных данных.
type StoreConfig struct {
	Backend     string        `yaml:"backend" env:"STORE_BACKEND" env-default:"file"`
	Dir         string        `yaml:"dir" env:"STORE_DIR"`
	Passphrase  string        `yaml:"passphrase" env:"STORE_PASSPHRASE"`
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL string        `yaml:"db_url" env:"DATABASE_URL"`
	Prefix      string        `yaml:"prefix" env:"STORE_PREFIX" env-default:"cheffrey:cred:"`
	TTL         time.Duration `yaml:"ttl" env:"STORE_TTL" env-default:"0s"`
}

// S3Config — объектное хранилище для фотографий рецептов.
type S3Config struct {
	Endpoint      string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey     string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Bucket        string `yaml:"bucket" env:"S3_BUCKET" env-default:"recipes"`
	PublicBaseURL string `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
}

// PhotoConfig — ограничения на загружаемые фотографии.
type PhotoConfig struct {
	MaxSizeBytes        int64    `yaml:"max_size_bytes" env:"PHOTO_MAX_SIZE_BYTES" env-default:"5242880"`
	AllowedContentTypes []string `yaml:"allowed_content_types" env:"PHOTO_ALLOWED_CONTENT_TYPES" env-default:"image/jpeg,image/png,image/webp"`
}

// MetricsConfig — адрес служебного HTTP-сервера (watch-режим).
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"127.0.0.1"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9464"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// LogConfig — вывод логов в файл с ротацией (пустой File — stdout).
type LogConfig struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
}

// WatchConfig — период опроса в watch-режиме.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval" env:"WATCH_INTERVAL" env-default:"1m"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return finish(&cfg)
	}

	if path != "" {
		return read(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return read(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// validate проверяет согласованность выбранного бэкенда и его параметров.
func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if cfg.Store.RedisURL == "" {
			return fmt.Errorf("store backend %q requires redis_url", cfg.Store.Backend)
		}
	case StorePostgres:
		if cfg.Store.DatabaseURL == "" {
			return fmt.Errorf("store backend %q requires db_url", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api base_url is empty")
	}

	return nil
}
