package logging

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"
)

// LogConfig selects and configures the logger built by NewLogger.
type LogConfig struct {
	Level           LogLevel
	OutputFile      string
	EnableConsole   bool
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
	MaxFileSize     int64
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		RedactSensitive: true,
		EnableColor:     true,
		EnableTimestamp: true,
		MaxFileSize:     100 * 1024 * 1024,
	}
}

// NewLogger returns a console logger, a file logger, both behind a MultiLogger,
// or a NoOpLogger when neither output is enabled.
func NewLogger(config LogConfig) (Logger, error) {
	var loggers []Logger

	if config.OutputFile != "" {
		fileLogger, err := NewFileLogger(FileLoggerConfig{
			FilePath:      config.OutputFile,
			Level:         config.Level,
			MaxFileSize:   config.MaxFileSize,
			RotateEnabled: config.MaxFileSize > 0,
		})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}

	if config.EnableConsole {
		loggers = append(loggers, NewConsoleLogger(ConsoleLoggerConfig{
			Level:            config.Level,
			ColorEnabled:     config.EnableColor,
			TimestampEnabled: config.EnableTimestamp,
			RedactSensitive:  config.RedactSensitive,
		}))
	}

	switch len(loggers) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return loggers[0], nil
	default:
		return NewMultiLogger(loggers...), nil
	}
}

// DebugTransport logs every Drive HTTP exchange at DEBUG level with secrets redacted.
type DebugTransport struct {
	Base   http.RoundTripper
	Logger Logger
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if dump, err := httputil.DumpRequestOut(req, false); err == nil {
		t.Logger.Debug("HTTP request", F("dump", redactSensitiveData(string(dump))))
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Logger.Debug("HTTP request failed",
			F("url", req.URL.Redacted()),
			F("error", err.Error()),
			F("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	t.Logger.Debug("HTTP response",
		F("url", req.URL.Redacted()),
		F("status", resp.StatusCode),
		F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}

// NewDebugLoggerWithTransport builds a logger and, when EnableDebug is set, an
// HTTP transport that logs through it. The transport is nil otherwise.
func NewDebugLoggerWithTransport(config LogConfig) (Logger, *DebugTransport, error) {
	if config.EnableDebug {
		config.Level = DEBUG
	}
	logger, err := NewLogger(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if !config.EnableDebug {
		return logger, nil, nil
	}
	return logger, &DebugTransport{Base: http.DefaultTransport, Logger: logger}, nil
}
