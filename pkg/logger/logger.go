package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Logger is an immutable set of fields over a shared logrus logger. Every
// With* call returns a copy, so a logger can be handed to goroutines freely.
type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
	PanicLevel LogLevel = "panic"
)

type Config struct {
	Level      LogLevel `json:"level"`
	Format     string   `json:"format"` // json, text
	Output     string   `json:"output"` // stdout, stderr, file path
	TimeFormat string   `json:"time_format"`
	Caller     bool     `json:"caller"`
	Colors     bool     `json:"colors"`
	AppName    string   `json:"app_name"`
	Version    string   `json:"version"`
}

type contextKey string

// Context keys read by WithContext.
const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
)

func NewLogger(config *Config) (*Logger, error) {
	out, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(parseLevel(config.Level))
	base.SetReportCaller(config.Caller)
	if config.Format == "json" {
		base.SetFormatter(&JSONFormatter{TimestampFormat: config.TimeFormat, AppName: config.AppName, Version: config.Version})
	} else {
		base.SetFormatter(&TextFormatter{TimestampFormat: config.TimeFormat, Colors: config.Colors, AppName: config.AppName})
	}

	return &Logger{logger: base, fields: logrus.Fields{}}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{logger: base, fields: logrus.Fields{}}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func parseLevel(level LogLevel) logrus.Level {
	parsed, err := logrus.ParseLevel(string(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func (l *Logger) with(extra map[string]interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{logger: l.logger, fields: fields}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(map[string]interface{}{key: value})
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(fields)
}

// WithContext adds the request, user and session ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if fields := contextFields(ctx); len(fields) > 0 {
		return l.with(fields)
	}
	return l
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) WithUserID(userID primitive.ObjectID) *Logger {
	return l.WithField("user_id", userID.Hex())
}

func (l *Logger) WithTripID(tripID primitive.ObjectID) *Logger {
	return l.WithField("trip_id", tripID.Hex())
}

func (l *Logger) WithBookingID(bookingID primitive.ObjectID) *Logger {
	return l.WithField("booking_id", bookingID.Hex())
}

func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.WithField("session_id", sessionID)
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithField("request_id", requestID)
}

func (l *Logger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

func (l *Logger) Debug(msg string) { l.entry().Debug(msg) }
func (l *Logger) Info(msg string)  { l.entry().Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry().Warn(msg) }
func (l *Logger) Error(msg string) { l.entry().Error(msg) }
func (l *Logger) Fatal(msg string) { l.entry().Fatal(msg) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

// event tags a line with type and event so dashboards can filter on them.
func (l *Logger) event(kind, name string, fields map[string]interface{}) *Logger {
	return l.with(fields).with(map[string]interface{}{"type": kind, "event": name})
}

// LogBookingEvent records a booking state change.
func (l *Logger) LogBookingEvent(bookingID primitive.ObjectID, event string, details map[string]interface{}) {
	l.WithBookingID(bookingID).event("booking_event", event, details).Info("Booking event occurred")
}

// LogSessionEvent records a realtime session connecting or going away.
func (l *Logger) LogSessionEvent(sessionID string, userID primitive.ObjectID, event string, details map[string]interface{}) {
	l.WithSessionID(sessionID).WithUserID(userID).event("session_event", event, details).Info("Session event occurred")
}

func (l *Logger) LogPaymentEvent(bookingID primitive.ObjectID, provider, event, status string) {
	l.WithBookingID(bookingID).event("payment_event", event, map[string]interface{}{
		"provider": provider,
		"status":   status,
	}).Info("Payment event occurred")
}

func (l *Logger) LogAPIRequest(method, endpoint string, statusCode int, duration time.Duration, userID string) {
	fields := map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
		"type":        "api_request",
	}
	if userID != "" {
		fields["user_id"] = userID
	}

	log := l.with(fields)
	switch {
	case statusCode >= 500:
		log.Error("API request failed")
	case statusCode >= 400:
		log.Warn("API request rejected")
	default:
		log.Info("API request processed")
	}
}

// LogSecurityEvent logs rejected credentials and signatures. High and
// critical severities are errors, the rest warnings.
func (l *Logger) LogSecurityEvent(eventType string, severity string, details map[string]interface{}) {
	log := l.event("security_event", eventType, details).WithField("severity", severity)
	if severity == "high" || severity == "critical" {
		log.Error("Security event detected")
		return
	}
	log.Warn("Security event detected")
}

func (l *Logger) SetOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func contextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields := make(map[string]interface{}, 3)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields["request_id"] = requestID
	}
	switch userID := ctx.Value(UserIDKey).(type) {
	case primitive.ObjectID:
		fields["user_id"] = userID.Hex()
	case string:
		fields["user_id"] = userID
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		fields["session_id"] = sessionID
	}
	return fields
}
