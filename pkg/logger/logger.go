package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	mu sync.RWMutex
}

// LogLevel represents log levels
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// LogFormat represents log output formats
type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat
	Output string // file path or "stdout"
}

var (
	instance *Logger
	once     sync.Once

	// fallback serves callers before Init, mostly tests.
	fallback = &Logger{Logger: logrus.New()}
)

// Init initializes the global logger from the environment
func Init() {
	once.Do(func() {
		instance = NewLogger(getLoggerConfig())
	})
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	l := &Logger{
		Logger: logrus.New(),
	}

	l.SetLevel(getLogrusLevel(config.Level))

	if config.Format == TextFormat {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	}

	if config.Output == "stdout" || config.Output == "" {
		l.SetOutput(os.Stdout)
	} else if writer, err := openFileOutput(config.Output); err != nil {
		log.Printf("Failed to setup file output: %v", err)
		l.SetOutput(os.Stdout)
	} else {
		l.SetOutput(writer)
	}

	l.SetReportCaller(true)
	return l
}

func openFileOutput(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	if os.Getenv("APP_ENV") == "development" {
		return io.MultiWriter(file, os.Stdout), nil
	}
	return file, nil
}

func getLoggerConfig() Config {
	config := Config{
		Level:  InfoLevel,
		Format: JSONFormat,
		Output: "stdout",
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		config.Output = output
	}
	return config
}

func getLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func get() *Logger {
	if instance != nil {
		return instance
	}
	return fallback
}

// SetOutput redirects the active logger, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Logger.SetOutput(w)
}

func Info(args ...interface{})  { get().Info(args...) }
func Error(args ...interface{}) { get().Error(args...) }
func Fatal(args ...interface{}) { get().Fatal(args...) }

// WithField creates a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

// WithFields creates a logger with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}

// WithError creates a logger with an error field
func WithError(err error) *logrus.Entry {
	return get().WithError(err)
}

func withMetadata(fields logrus.Fields, metadata map[string]interface{}) logrus.Fields {
	for k, v := range metadata {
		fields[k] = v
	}
	return fields
}

// LogRequest logs HTTP request information
func LogRequest(method, path, ip, userAgent string, duration time.Duration, statusCode int) {
	entry := WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"ip":          ip,
		"user_agent":  userAgent,
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"type":        "request",
	})
	if statusCode >= 500 {
		entry.Error("HTTP Request")
		return
	}
	entry.Info("HTTP Request")
}

// LogUserAction logs user actions
func LogUserAction(userID, action string, metadata map[string]interface{}) {
	WithFields(withMetadata(logrus.Fields{
		"user_id": userID,
		"action":  action,
		"type":    "user_action",
	}, metadata)).Info("User Action")
}

// LogChatEvent logs chat and room relay events
func LogChatEvent(event, conversationID, userID string, metadata map[string]interface{}) {
	WithFields(withMetadata(logrus.Fields{
		"event":           event,
		"conversation_id": conversationID,
		"user_id":         userID,
		"type":            "chat_event",
	}, metadata)).Info("Chat Event")
}

// LogSessionEvent logs video session lifecycle events
func LogSessionEvent(event, roomID, userID string, metadata map[string]interface{}) {
	WithFields(withMetadata(logrus.Fields{
		"event":   event,
		"room_id": roomID,
		"user_id": userID,
		"type":    "session_event",
	}, metadata)).Info("Session Event")
}

// LogSecurityEvent logs rejected credentials and authorization failures
func LogSecurityEvent(event, userID, ip string, metadata map[string]interface{}) {
	WithFields(withMetadata(logrus.Fields{
		"event":   event,
		"user_id": userID,
		"ip":      ip,
		"type":    "security_event",
	}, metadata)).Warn("Security Event")
}

// LogError logs detailed error information
func LogError(err error, context string, metadata map[string]interface{}) {
	fields := withMetadata(logrus.Fields{
		"error":   err.Error(),
		"context": context,
		"type":    "error_detail",
	}, metadata)

	if os.Getenv("APP_ENV") == "development" {
		fields["stack_trace"] = getStackTrace()
	}

	WithFields(fields).Error("Application Error")
}

func getStackTrace() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Close closes the logger output when it is a file
func Close() error {
	if instance != nil {
		if file, ok := instance.Out.(*os.File); ok && file != os.Stdout && file != os.Stderr {
			return file.Close()
		}
	}
	return nil
}
