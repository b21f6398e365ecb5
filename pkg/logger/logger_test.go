package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	log, err := NewLogger(&Config{Level: DebugLevel, Format: format, AppName: "tripchat", Version: "test"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)
	return log, &buf
}

func TestJSONFormatterKeyOrder(t *testing.T) {
	log, buf := newBufferLogger(t, "json")
	tripID := primitive.NewObjectID()

	log.WithField("zeta", 1).WithTripID(tripID).WithSessionID("s-1").
		WithError(errors.New("write: broken pipe")).Warn("session dropped")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", line, err)
	}
	if decoded["trip_id"] != tripID.Hex() || decoded["error"] != "write: broken pipe" || decoded["app"] != "tripchat" {
		t.Fatalf("decoded = %v", decoded)
	}

	order := []string{`"time"`, `"level"`, `"msg"`, `"session_id"`, `"trip_id"`, `"error"`, `"zeta"`}
	last := -1
	for _, key := range order {
		i := strings.Index(line, key)
		if i <= last {
			t.Fatalf("key %s out of order in %s", key, line)
		}
		last = i
	}
}

func TestJSONFormatterReservedKeys(t *testing.T) {
	log, buf := newBufferLogger(t, "json")
	log.WithField("msg", "shadow").Info("real")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["msg"] != "real" || decoded["fields.msg"] != "shadow" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestTextFormatter(t *testing.T) {
	log, buf := newBufferLogger(t, "text")
	log.WithRequestID("req-9").WithField("note", "two words").Info("joined")

	line := buf.String()
	for _, want := range []string{"INFO", "[tripchat] joined", "request_id=req-9", `note="two words"`} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q lacks %q", line, want)
		}
	}
	if strings.Contains(line, "\033[") {
		t.Errorf("colors written without Colors: %q", line)
	}
}

func TestWithContext(t *testing.T) {
	log, buf := newBufferLogger(t, "json")
	userID := primitive.NewObjectID()
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, userID)

	log.WithContext(ctx).Info("handled")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["request_id"] != "req-1" || decoded["user_id"] != userID.Hex() {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestFieldsAreCopied(t *testing.T) {
	log, buf := newBufferLogger(t, "json")
	base := log.WithField("a", 1)
	_ = base.WithField("b", 2)
	base.Info("x")

	if strings.Contains(buf.String(), `"b"`) {
		t.Fatalf("child field leaked into parent: %s", buf.String())
	}
}

func TestEventLevels(t *testing.T) {
	bookingID := primitive.NewObjectID()

	tests := []struct {
		name      string
		log       func(l *Logger)
		wantLevel string
		wantType  string
	}{
		{
			name:      "booking event",
			log:       func(l *Logger) { l.LogBookingEvent(bookingID, "confirmed", map[string]interface{}{"seats": 1}) },
			wantLevel: "info",
			wantType:  "booking_event",
		},
		{
			name:      "low severity security event",
			log:       func(l *Logger) { l.LogSecurityEvent("websocket_auth_failed", "low", nil) },
			wantLevel: "warning",
			wantType:  "security_event",
		},
		{
			name:      "critical security event",
			log:       func(l *Logger) { l.LogSecurityEvent("payment_webhook_forged", "critical", nil) },
			wantLevel: "error",
			wantType:  "security_event",
		},
		{
			name:      "client error request",
			log:       func(l *Logger) { l.LogAPIRequest("POST", "/api/v1/bookings", 409, time.Millisecond, "") },
			wantLevel: "warning",
			wantType:  "api_request",
		},
		{
			name:      "server error request",
			log:       func(l *Logger) { l.LogAPIRequest("GET", "/health", 503, time.Millisecond, "") },
			wantLevel: "error",
			wantType:  "api_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(t, "json")
			tt.log(log)

			var decoded map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("invalid json %q: %v", buf.String(), err)
			}
			if decoded["level"] != tt.wantLevel || decoded["type"] != tt.wantType {
				t.Fatalf("level = %v type = %v, want %s %s", decoded["level"], decoded["type"], tt.wantLevel, tt.wantType)
			}
		})
	}
}
