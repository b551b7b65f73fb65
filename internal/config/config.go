// Package config загружает конфигурацию сервисов из переменных окружения.
//
// Все значения имеют значения по умолчанию, пригодные для локальной
// разработки: удалённый сервис на 127.0.0.1:8000, API на :8080.
// Пустые DB_URL и RABBITMQ_URL отключают архив запусков и шину событий.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Значения по умолчанию.
const (
	DefaultRemoteBaseURL = "http://127.0.0.1:8000"
	DefaultStepTimeout   = 10 * time.Minute
	DefaultAPIPort       = "8080"
	DefaultWatcherPort   = "8081"
	DefaultInboxDir      = "./inbox"
	DefaultInboxCron     = "* * * * *"
	DefaultJobExtensions = ".las,.laz"
	DefaultCORSOrigins   = "http://localhost:3000"
)

// Config — конфигурация сервисов Displacement.
type Config struct {
	// Удалённый сервис обработки
	RemoteBaseURL string
	RemoteToken   string
	StepTimeout   time.Duration

	// Каталог шагов
	LabelReassembly bool
	JobExtensions   []string

	// HTTP
	APIPort     string
	WatcherPort string
	CORSOrigins []string

	// Инфраструктура (пустая строка — компонент отключён)
	DatabaseURL string
	RabbitMQURL string

	// Inbox watcher
	InboxDir  string
	InboxCron string
}

// Load читает конфигурацию из окружения.
func Load() *Config {
	return &Config{
		RemoteBaseURL:   getEnv("REMOTE_BASE_URL", DefaultRemoteBaseURL),
		RemoteToken:     getEnv("REMOTE_TOKEN", ""),
		StepTimeout:     getEnvDuration("STEP_TIMEOUT", DefaultStepTimeout),
		LabelReassembly: getEnvBool("LABEL_REASSEMBLY", false),
		JobExtensions:   getEnvList("JOB_EXTENSIONS", DefaultJobExtensions),
		APIPort:         getEnv("API_PORT", DefaultAPIPort),
		WatcherPort:     getEnv("WATCHER_PORT", DefaultWatcherPort),
		CORSOrigins:     getEnvList("CORS_ORIGINS", DefaultCORSOrigins),
		DatabaseURL:     getEnv("DB_URL", ""),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		InboxDir:        getEnv("INBOX_DIR", DefaultInboxDir),
		InboxCron:       getEnv("INBOX_CRON", DefaultInboxCron),
	}
}

// APIAddr возвращает адрес HTTP API.
func (c *Config) APIAddr() string {
	return ":" + c.APIPort
}

// WatcherAddr возвращает адрес health/metrics сервера watcher'а.
func (c *Config) WatcherAddr() string {
	return ":" + c.WatcherPort
}

// ArchiveEnabled — задан ли DB_URL.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

// EventsEnabled — задан ли RABBITMQ_URL.
func (c *Config) EventsEnabled() bool {
	return c.RabbitMQURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList разбирает список через запятую. Пустые элементы отбрасываются.
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
