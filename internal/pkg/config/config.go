package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Драйверы хранилища
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// DefaultEnvironment используется, когда APP_ENV не задан
const DefaultEnvironment = "production"

// Config содержит настройки приложения
type Config struct {
	// Текущее окружение
	Environment string

	// Настройки HTTP-сервера
	ServerPort int

	// Хранилище записей и очереди
	StoreDriver string

	// YAML с начальными данными для хранилища в памяти
	MemorySeedFile string

	// Настройки базы данных
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Настройки пула соединений
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Настройки исполнителей задач
	WorkerConcurrency    int
	WorkerPollInterval   time.Duration
	TaskTTR              time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	BatchPause           time.Duration

	// Настройки удаления
	Settings Settings
}

// LoadConfig загружает конфигурацию из .env, файла настроек и переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем .env файл, если он существует
	_ = godotenv.Load()

	config := &Config{
		// Значения по умолчанию
		ServerPort:           8080,
		StoreDriver:          StoreDriverPostgres,
		DBMaxOpenConns:       10,
		DBMaxIdleConns:       5,
		DBConnMaxLifetime:    5 * time.Minute,
		WorkerConcurrency:    4,
		WorkerPollInterval:   time.Second,
		TaskTTR:              5 * time.Minute,
		RetryInitialInterval: 5 * time.Second,
		RetryMaxInterval:     time.Minute,
		Settings:             DefaultSettings(),
	}

	config.Environment = getEnv("APP_ENV", DefaultEnvironment)
	config.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", config.StoreDriver))
	config.MemorySeedFile = os.Getenv("MEMORY_SEED_FILE")

	var err error

	// Сервер
	if config.ServerPort, err = getEnvInt("SERVER_PORT", config.ServerPort); err != nil {
		return nil, err
	}

	// База данных
	config.DBHost = getEnv("DB_HOST", "localhost")
	if config.DBPort, err = getEnvInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	config.DBUser = getEnv("DB_USER", "postgres")
	config.DBPassword = getEnv("DB_PASSWORD", "postgres")
	config.DBName = getEnv("DB_NAME", "postgres")
	config.DBSSLMode = getEnv("DB_SSL_MODE", "disable")

	// Пул соединений
	if config.DBMaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", config.DBMaxOpenConns); err != nil {
		return nil, err
	}
	if config.DBMaxIdleConns, err = getEnvInt("DB_MAX_IDLE_CONNS", config.DBMaxIdleConns); err != nil {
		return nil, err
	}
	if config.DBConnMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", config.DBConnMaxLifetime); err != nil {
		return nil, err
	}

	// Исполнители
	if config.WorkerConcurrency, err = getEnvInt("WORKER_CONCURRENCY", config.WorkerConcurrency); err != nil {
		return nil, err
	}
	if config.WorkerPollInterval, err = getEnvDuration("WORKER_POLL_INTERVAL", config.WorkerPollInterval); err != nil {
		return nil, err
	}
	if config.TaskTTR, err = getEnvDuration("TASK_TTR", config.TaskTTR); err != nil {
		return nil, err
	}
	if config.RetryInitialInterval, err = getEnvDuration("RETRY_INITIAL_INTERVAL", config.RetryInitialInterval); err != nil {
		return nil, err
	}
	if config.RetryMaxInterval, err = getEnvDuration("RETRY_MAX_INTERVAL", config.RetryMaxInterval); err != nil {
		return nil, err
	}
	if config.BatchPause, err = getEnvDuration("BATCH_PAUSE", config.BatchPause); err != nil {
		return nil, err
	}

	// Настройки удаления: сначала файл, затем переменные окружения
	if path := os.Getenv("CHOP_SETTINGS_FILE"); path != "" {
		if err := config.Settings.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.Settings.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %s", c.StoreDriver)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.WorkerConcurrency)
	}

	if c.TaskTTR <= 0 {
		return fmt.Errorf("task ttr must be positive, got %s", c.TaskTTR)
	}

	return c.Settings.Validate()
}

// IsDevelopment сообщает, запущено ли приложение не в production
func (c *Config) IsDevelopment() bool {
	return !strings.EqualFold(c.Environment, DefaultEnvironment)
}

// GetDBConnString возвращает строку подключения к PostgreSQL
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Вспомогательная функция для получения переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
