package util

import (
	"context"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

// ComponentKey is the context key holding the component name attached to log entries
const ComponentKey contextKey = "component"

const consoleLog = "console"

// WithComponent returns a context that tags log entries created with log.WithContext
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey, component)
}

// InitLog parses and sets log-level input
func InitLog(logLevel string, logPath string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", logLevel, err)
		return err
	}

	if logPath != "" && logPath != consoleLog {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			log.Errorf("Failed creating log dir for %s: %s", logPath, err)
			return err
		}
		lumberjackLogger := &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		log.SetOutput(io.Writer(lumberjackLogger))
	} else {
		log.SetOutput(os.Stderr)
	}

	log.SetFormatter(&CustomFormatter{TextFormatter: log.TextFormatter{FullTimestamp: true}})
	log.SetLevel(level)
	return nil
}

// CustomFormatter formats the log message as required
type CustomFormatter struct {
	log.TextFormatter
}

func (f *CustomFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Context == nil {
		return f.TextFormatter.Format(entry)
	}

	if component, ok := entry.Context.Value(ComponentKey).(string); ok && component != "" {
		entry.Data[string(ComponentKey)] = component
	}

	return f.TextFormatter.Format(entry)
}
