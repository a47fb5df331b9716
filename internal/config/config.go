package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Monitor   MonitorConfig
	Providers ProvidersConfig
	Notify    NotifyConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки хранилища портфелей
//
// Driver "memory" (по умолчанию) - референсный in-memory режим.
// Driver "postgres" - durable хранилище портфелей; кэши цен/риска и
// состояние cooldown/seen-events при этом остаются in-memory.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// Ключ AES-256 для шифрования брокерских API ключей (ровно 32 байта)
	EncryptionKey string

	// Общий секрет для POST /webhook/event (заголовок X-Webhook-Secret)
	WebhookSecret string
}

// MonitorConfig - параметры цикла мониторинга и контроллера cooldown
type MonitorConfig struct {
	// Интервал основного тика мониторинга
	TickInterval time.Duration

	// Минимальный интервал между периодическими пересчётами риска
	// на (user, symbol) - самое длинное окно
	RiskCooldown time.Duration

	// Минимальный интервал между event-driven пересчётами
	EventCooldown time.Duration

	// Минимальный интервал между переаллокациями стоп-лоссов портфеля.
	// Независим от пер-символьных окон: один медленный символ не должен
	// стопорить пересчёт всего портфеля.
	AllocationCooldown time.Duration

	// Порог относительного изменения цены, инвалидирующий риск-кэш (проценты)
	PriceDeltaPct float64

	// Порог резкого падения за DropWindow (проценты)
	DropAlertPct float64

	// Окно детекции резкого падения
	DropWindow time.Duration

	// Риск позиции логируется не чаще этого интервала
	LogThrottle time.Duration

	// Интервал опроса внешнего фида новостей/отчётностей
	EventPollInterval time.Duration

	// Окно дедупликации событий по идентичности
	EventDedupWindow time.Duration

	// TTL кэша цен
	PriceCacheTTL time.Duration

	// Интервал keep-alive сообщений stream hub
	KeepAliveInterval time.Duration

	// Минимальное изменение стоп-цены, при котором обновляем и уведомляем
	StopEpsilon float64

	// Лимит подписок стримингового фида цен
	StreamSymbolCap int

	// Max-loss процент по умолчанию, если портфель его не задал
	DefaultMaxLossPct float64
}

// ProvidersConfig - настройки провайдеров рыночных данных
type ProvidersConfig struct {
	// Finnhub: котировки, свечи, фундаментал, новости, отчётности
	FinnhubAPIKey  string
	FinnhubBaseURL string
	FinnhubWSURL   string

	// Alpaca: брокерский источник (используется при наличии credentials)
	AlpacaBaseURL string

	// Включить стриминговый фид цен
	StreamEnabled bool

	// Бенчмарк для беты и relative strength
	BenchmarkSymbol string
}

// NotifyConfig - настройки каналов доставки
type NotifyConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string

	// Таймаут доставки push уведомления
	PushTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "memory"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "stockwatch"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		},
		Monitor: MonitorConfig{
			TickInterval:       getEnvAsDuration("MONITOR_TICK_INTERVAL", 60*time.Second),
			RiskCooldown:       getEnvAsDuration("RISK_COOLDOWN", 15*time.Minute),
			EventCooldown:      getEnvAsDuration("EVENT_COOLDOWN", 5*time.Minute),
			AllocationCooldown: getEnvAsDuration("ALLOCATION_COOLDOWN", 10*time.Minute),
			PriceDeltaPct:      getEnvAsFloat("RISK_PRICE_DELTA_PCT", 4.0),
			DropAlertPct:       getEnvAsFloat("DROP_ALERT_PCT", 5.0),
			DropWindow:         getEnvAsDuration("DROP_WINDOW", 15*time.Minute),
			LogThrottle:        getEnvAsDuration("LOG_THROTTLE", 5*time.Minute),
			EventPollInterval:  getEnvAsDuration("EVENT_POLL_INTERVAL", 5*time.Minute),
			EventDedupWindow:   getEnvAsDuration("EVENT_DEDUP_WINDOW", 24*time.Hour),
			PriceCacheTTL:      getEnvAsDuration("PRICE_CACHE_TTL", 2*time.Second),
			KeepAliveInterval:  getEnvAsDuration("KEEPALIVE_INTERVAL", 30*time.Second),
			StopEpsilon:        getEnvAsFloat("STOP_EPSILON", 0.01),
			StreamSymbolCap:    getEnvAsInt("STREAM_SYMBOL_CAP", 50),
			DefaultMaxLossPct:  getEnvAsFloat("DEFAULT_MAX_LOSS_PCT", 5.0),
		},
		Providers: ProvidersConfig{
			FinnhubAPIKey:   getEnv("FINNHUB_API_KEY", ""),
			FinnhubBaseURL:  getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
			FinnhubWSURL:    getEnv("FINNHUB_WS_URL", "wss://ws.finnhub.io"),
			AlpacaBaseURL:   getEnv("ALPACA_BASE_URL", "https://data.alpaca.markets"),
			StreamEnabled:   getEnvAsBool("STREAM_ENABLED", true),
			BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SPY"),
		},
		Notify: NotifyConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			EmailFrom:    getEnv("EMAIL_FROM", "alerts@stockwatch.local"),
			PushTimeout:  getEnvAsDuration("PUSH_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен: брокерские ключи храним только зашифрованными
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting broker credentials")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// WEBHOOK_SECRET обязателен: /webhook/event форсирует пересчёт
	// и не должен быть доступен кому попало
	if c.Security.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required to guard the event webhook")
	}

	if len(c.Security.WebhookSecret) < 16 {
		return fmt.Errorf("WEBHOOK_SECRET must be at least 16 characters")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Driver != "memory" && c.Database.Driver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be 'memory' or 'postgres', got %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Интервалы должны быть положительными
	intervals := map[string]time.Duration{
		"MONITOR_TICK_INTERVAL": c.Monitor.TickInterval,
		"RISK_COOLDOWN":         c.Monitor.RiskCooldown,
		"EVENT_COOLDOWN":        c.Monitor.EventCooldown,
		"ALLOCATION_COOLDOWN":   c.Monitor.AllocationCooldown,
		"DROP_WINDOW":           c.Monitor.DropWindow,
		"EVENT_POLL_INTERVAL":   c.Monitor.EventPollInterval,
		"EVENT_DEDUP_WINDOW":    c.Monitor.EventDedupWindow,
		"PRICE_CACHE_TTL":       c.Monitor.PriceCacheTTL,
		"KEEPALIVE_INTERVAL":    c.Monitor.KeepAliveInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Monitor.PriceDeltaPct <= 0 || c.Monitor.PriceDeltaPct > 100 {
		return fmt.Errorf("RISK_PRICE_DELTA_PCT must be in (0, 100], got %v", c.Monitor.PriceDeltaPct)
	}

	if c.Monitor.DropAlertPct <= 0 || c.Monitor.DropAlertPct > 100 {
		return fmt.Errorf("DROP_ALERT_PCT must be in (0, 100], got %v", c.Monitor.DropAlertPct)
	}

	if c.Monitor.StopEpsilon < 0 {
		return fmt.Errorf("STOP_EPSILON cannot be negative, got %v", c.Monitor.StopEpsilon)
	}

	if c.Monitor.StreamSymbolCap < 1 {
		return fmt.Errorf("STREAM_SYMBOL_CAP must be at least 1, got %d", c.Monitor.StreamSymbolCap)
	}

	if c.Monitor.DefaultMaxLossPct <= 0 || c.Monitor.DefaultMaxLossPct > 50 {
		return fmt.Errorf("DEFAULT_MAX_LOSS_PCT must be in (0, 50], got %v", c.Monitor.DefaultMaxLossPct)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
