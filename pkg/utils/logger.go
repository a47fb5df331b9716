package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование (zap)
//
// Назначение:
// Единая точка инициализации логгера для всего приложения.
// Обёртка над zap с доменными конструкторами полей (symbol, user_id, price...).
//
// Использование:
//
//	logger := utils.InitGlobalLogger(utils.LogConfig{Level: "info", Format: "json"})
//	defer logger.Sync()
//	utils.Info("Monitoring started", utils.Symbol("AAPL"), utils.UserID("u1"))
//
// Или с контекстом компонента:
//
//	log := utils.L().WithComponent("monitor")
//	log.Debug("Trigger rejected by cooldown", utils.Symbol("TSLA"))

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // режим разработки (stacktraces на warn+)
}

// Logger - обёртка над zap.Logger с sugar для форматированных сообщений
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel преобразует строку в zapcore.Level
// Неизвестные значения трактуются как info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт и настраивает логгер
//
// Формат (json/text), уровень и вывод берутся из конфигурации.
// При недоступности файла вывода - fallback на stderr (не паникуем).
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	// Выбор синка: файл или stderr
	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// При ошибке открытия файла остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// Sugar возвращает SugaredLogger для printf-style логирования
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With возвращает новый логгер с добавленными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithSymbol возвращает логгер с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithUser возвращает логгер с полем user_id
func (l *Logger) WithUser(userID string) *Logger {
	return l.With(zap.String("user_id", userID))
}

// WithSource возвращает логгер с полем source (провайдер данных)
func (l *Logger) WithSource(source string) *Logger {
	return l.With(zap.String("source", source))
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер
// Если не инициализирован - создаёт с настройками по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует сообщение на уровне debug
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info логирует сообщение на уровне info
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn логирует сообщение на уровне warn
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

// Error логирует сообщение на уровне error
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Fatal логирует сообщение и завершает процесс
func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

// Debugf логирует форматированное сообщение на уровне debug
func Debugf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(template, args...)
}

// Infof логирует форматированное сообщение на уровне info
func Infof(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(template, args...)
}

// Warnf логирует форматированное сообщение на уровне warn
func Warnf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(template, args...)
}

// Errorf логирует форматированное сообщение на уровне error
func Errorf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(template, args...)
}

// ============================================================
// Доменные конструкторы полей
// ============================================================

// Symbol - поле с тикером инструмента
func Symbol(symbol string) zap.Field {
	return zap.String("symbol", symbol)
}

// UserID - поле с идентификатором пользователя
func UserID(userID string) zap.Field {
	return zap.String("user_id", userID)
}

// Source - поле с именем провайдера данных
func Source(source string) zap.Field {
	return zap.String("source", source)
}

// Price - поле с ценой
func Price(price float64) zap.Field {
	return zap.Float64("price", price)
}

// RiskScore - поле с риск-скором [1,10]
func RiskScore(score int) zap.Field {
	return zap.Int("risk_score", score)
}

// StopLoss - поле со стоп-ценой
func StopLoss(stop float64) zap.Field {
	return zap.Float64("stop_loss", stop)
}

// Channel - поле с каналом доставки (stream, email, push)
func Channel(channel string) zap.Field {
	return zap.String("channel", channel)
}

// TriggerKind - поле с типом триггера (periodic, drop, event, webhook)
func TriggerKind(kind string) zap.Field {
	return zap.String("trigger_kind", kind)
}

// Latency - поле с латентностью в миллисекундах
func Latency(ms float64) zap.Field {
	return zap.Float64("latency_ms", ms)
}

// RequestID - поле с идентификатором запроса
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// Component - поле с именем компонента
func Component(component string) zap.Field {
	return zap.String("component", component)
}

// ============================================================
// Переэкспорт стандартных конструкторов zap
// ============================================================

// String - строковое поле
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int - целочисленное поле
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 - поле int64
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Float64 - поле float64
func Float64(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// Bool - булево поле
func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

// Err - поле с ошибкой
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Any - поле произвольного типа
func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

// fieldsToInterface конвертирует zap.Field в пары key-value для sugar API
//
// Best-effort: строки и ошибки передаются как есть, числа через Integer,
// остальное через Interface
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		var value interface{}
		switch {
		case f.Interface != nil:
			value = f.Interface
		case f.String != "":
			value = f.String
		default:
			value = f.Integer
		}
		result = append(result, f.Key, value)
	}
	return result
}
