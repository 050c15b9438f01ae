// Package audit records candidate lifecycle events as structured zap logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of candidate lifecycle event
type EventType string

const (
	EventCandidateCreated  EventType = "candidate_created"
	EventCandidateUpdated  EventType = "candidate_updated"
	EventCandidateDeleted  EventType = "candidate_deleted"
	EventFavoriteChanged   EventType = "favorite_changed"
	EventPhotoReplaced     EventType = "photo_replaced"
	EventPhotoRemoved      EventType = "photo_removed"
	EventPersistFailed     EventType = "persist_failed"
	EventValidationFailed  EventType = "validation_failed"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
)

// Event is a single audit record
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	Service     string                 `json:"service"`
	Environment string                 `json:"env"`
	Event       EventType              `json:"event"`
	CandidateID int64                  `json:"candidate_id,omitempty"`
	Email       string                 `json:"email,omitempty"` // masked
	Phone       string                 `json:"phone,omitempty"` // masked
	RequestID   string                 `json:"request_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

type Logger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
}

// New builds a production zap logger writing JSON to stdout.
func New(serviceName, environment string) *Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		// Fallback to a basic logger if config fails
		logger, _ = zap.NewProduction()
	}
	return NewWithZap(logger, serviceName, environment)
}

// NewWithZap wraps an existing zap logger (tests use zaptest/observer).
func NewWithZap(l *zap.Logger, serviceName, environment string) *Logger {
	return &Logger{zapLogger: l, serviceName: serviceName, environment: environment}
}

// Nop discards every event.
func Nop() *Logger {
	return NewWithZap(zap.NewNop(), "", "")
}

func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

// Log writes an audit event
func (l *Logger) Log(ctx context.Context, event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = l.serviceName
	event.Environment = l.environment
	if event.RequestID == "" {
		event.RequestID = requestIDFrom(ctx)
	}

	level := zapcore.InfoLevel
	switch event.Event {
	case EventPersistFailed:
		level = zapcore.ErrorLevel
	case EventValidationFailed, EventRateLimitExceeded:
		level = zapcore.WarnLevel
	}

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
		zap.Time("at", event.Timestamp),
	}
	if event.CandidateID != 0 {
		fields = append(fields, zap.Int64("candidate_id", event.CandidateID))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", MaskEmail(event.Email)))
	}
	if event.Phone != "" {
		fields = append(fields, zap.String("phone", MaskPhone(event.Phone)))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	l.zapLogger.Log(level, string(event.Event), fields...)
}

// MaskEmail masks an email address for logging (e.g., "j***@example.com")
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	atIndex := -1
	for i, c := range email {
		if c == '@' {
			atIndex = i
			break
		}
	}
	if atIndex <= 1 {
		return "***" + email[1:]
	}
	return string(email[0]) + "***" + email[atIndex:]
}

// MaskPhone keeps the last two digits of a phone number.
func MaskPhone(phone string) string {
	if len(phone) <= 2 {
		return "**"
	}
	return "***" + phone[len(phone)-2:]
}

// RequestIDContextKey is the context key under which the HTTP layer stores
// the request id.
type RequestIDContextKey struct{}

func requestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDContextKey{}).(string)
	return id
}
