package util

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// globalLogger is handed to components; helperLogger backs the package
	// level Info/Warn/... helpers and skips their frame.
	globalLogger *zap.Logger
	helperLogger *zap.Logger
	once         sync.Once
	mu           sync.RWMutex
)

// Init builds the process-wide logger once. Later calls return the same instance.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		var config zap.Config

		if environment == "production" {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			config.DisableStacktrace = true
			config.Sampling = &zap.SamplingConfig{
				Initial:    100,
				Thereafter: 100,
			}
		} else {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		config.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

		config.Encoding = "console"
		if format == "json" {
			config.Encoding = "json"
			config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		}
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		l, err := config.Build(zap.AddCaller())
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		l = l.With(zap.String("service", "zksteam-api"), zap.String("env", environment))

		mu.Lock()
		if globalLogger == nil {
			setLocked(l)
		}
		mu.Unlock()

		zap.ReplaceGlobals(l)
	})

	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

func setLocked(l *zap.Logger) {
	globalLogger = l
	helperLogger = l.WithOptions(zap.AddCallerSkip(1))
}

// Get returns the global logger, falling back to a production JSON logger.
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		return Init("production", "info", "json")
	}
	return l
}

func helper() *zap.Logger {
	mu.RLock()
	l := helperLogger
	mu.RUnlock()
	if l == nil {
		Init("production", "info", "json")
		mu.RLock()
		l = helperLogger
		mu.RUnlock()
	}
	return l
}

// SetLogger swaps the global logger. Tests use it with zap.NewNop.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	setLocked(l)
	mu.Unlock()
}

// Named returns a child of the global logger for a component.
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

func Sync() {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// parseLogLevel falls back to info on anything zap does not recognise.
func parseLogLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "warning") {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func Debug(msg string, fields ...zap.Field) {
	helper().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	helper().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	helper().Fatal(msg, fields...)
}

func String(key, value string) zap.Field {
	return zap.String(key, value)
}

func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// ErrorField is zap.Error; the name avoids clashing with Error above.
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}
