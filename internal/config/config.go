// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Поддерживаемые драйверы хранилища пользователей.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config: корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
//
// Перед чтением подгружается .env из рабочей директории, если он есть.
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	Hash     HashConfig    `yaml:"hash"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Limiter  LimiterConfig `yaml:"limiter"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig: таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"5s"`
}

// HTTPConfig: сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	// CORSAllowedOrigins: пустой список отключает CORS.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит секреты подписи токенов.
// Access- и refresh-токены подписываются разными ключами; время жизни
// токенов фиксировано и в конфигурацию не выносится.
type AuthConfig struct {
	AccessSecret  string `yaml:"access_secret" env:"JWT_AT_SECRET" env-required:"true"`
	RefreshSecret string `yaml:"refresh_secret" env:"JWT_RT_SECRET" env-required:"true"`
}

// HashConfig: параметры argon2id.
type HashConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib" env:"HASH_MEMORY_KIB" env-default:"65536"`
	Time        uint32 `yaml:"time" env:"HASH_TIME" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"HASH_PARALLELISM" env-default:"2"`
	SaltLength  uint32 `yaml:"salt_length" env:"HASH_SALT_LEN" env-default:"16"`
	KeyLength   uint32 `yaml:"key_length" env:"HASH_KEY_LEN" env-default:"32"`
}

// DBConfig: настройки подключения к базе данных.
type DBConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig: пустой URL отключает ограничение попыток входа.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// LimiterConfig: параметры ограничения неудачных попыток входа.
type LimiterConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"LOGIN_MAX_ATTEMPTS" env-default:"5"`
	Cooldown    time.Duration `yaml:"cooldown" env:"LOGIN_COOLDOWN" env-default:"15m"`
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return fmt.Errorf("token secrets must not be empty")
	}

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("access and refresh secrets must differ")
	}

	if c.Limiter.MaxAttempts < 1 {
		return fmt.Errorf("limiter max_attempts must be >= 1")
	}

	return nil
}

// MustLoad: обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	// .env не обязателен: отсутствие файла не ошибка.
	_ = godotenv.Load()

	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return validated(&cfg)
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return validated(&cfg)
}

func validated(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
