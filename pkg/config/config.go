// пакет config описывает конфигурацию сервера блога
// и загружает ее из .env, YAML-файла и переменных окружения.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config - корневая конфигурация сервера.
// Приоритет источников:
//  1. явный путь, переданный в Load;
//  2. переменная окружения CONFIG_PATH;
//  3. переменные окружения (в том числе из файла .env).
type Config struct {
	Env            string        `yaml:"env"             env:"ENV"             env-default:"local"`
	Addr           string        `yaml:"addr"            env:"BLOG_ADDR"       env-default:":8080"`
	ClientURL      []string      `yaml:"client_url"      env:"CLIENT_URL"      env-separator:","`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"10s"`
	BannedWords    []string      `yaml:"banned_words"    env:"BANNED_WORDS"    env-separator:","`
	SeedFile       string        `yaml:"seed_file"       env:"SEED_FILE"`
	DB             DBConfig      `yaml:"db"`
	Session        SessionConfig `yaml:"session"`
}

// DBConfig - настройки подключения к базе данных.
// URL вида postgres://... выбирает PostgreSQL, mem:// - память,
// все остальное считается DSN для SQLite.
type DBConfig struct {
	URL             string        `yaml:"url"                env:"DB_URL"                env-default:"file:blog.db?_fk=on&_txlock=immediate"`
	MaxConns        int           `yaml:"max_conns"          env:"DB_MAX_CONNS"          env-default:"50"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"4m"`
	ConnectRetries  int           `yaml:"connect_retries"    env:"DB_CONNECT_RETRIES"    env-default:"5"`
	ConnectInterval time.Duration `yaml:"connect_interval"   env:"DB_CONNECT_INTERVAL"   env-default:"1s"`
}

// SessionConfig - настройки cookie сессии.
type SessionConfig struct {
	Secret string        `yaml:"secret" env:"SESSION_SECRET" env-required:"true"`
	TTL    time.Duration `yaml:"ttl"    env:"SESSION_TTL"    env-default:"24h"`
}

// Production сообщает, запущен ли сервер в боевом окружении.
func (c *Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Load загружает конфигурацию: 1) явный путь; 2) CONFIG_PATH; 3) ENV.
// Перед чтением подгружается .env, если он есть.
func Load(path string) (*Config, error) {
	// переменные можно найти не только в файле
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize убирает пробелы и пустые элементы из списков.
func (c *Config) normalize() {
	c.ClientURL = compact(c.ClientURL)
	c.BannedWords = compact(c.BannedWords)
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validate - базовая валидация значений.
func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.DB.ConnectRetries <= 0 {
		return fmt.Errorf("db.connect_retries must be > 0")
	}
	if len(c.Session.Secret) < 16 {
		return fmt.Errorf("session.secret must be at least 16 characters")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	return nil
}
