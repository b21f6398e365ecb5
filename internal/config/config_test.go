package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chat.MaxRoomParties != 2 {
		t.Errorf("MaxRoomParties = %d, want 2", cfg.Chat.MaxRoomParties)
	}
	if cfg.Chat.MaxMessageLength != 1000 {
		t.Errorf("MaxMessageLength = %d, want 1000", cfg.Chat.MaxMessageLength)
	}
	if cfg.WebSocket.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.WebSocket.HandshakeTimeout)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Database.Driver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CHAT_SEND_RATE_WINDOW", "30s")
	t.Setenv("WEBSOCKET_SEND_BUFFER_SIZE", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.SendRateWindow != 30*time.Second {
		t.Errorf("SendRateWindow = %v", cfg.Chat.SendRateWindow)
	}
	if cfg.WebSocket.SendBufferSize != 8 {
		t.Errorf("SendBufferSize = %d", cfg.WebSocket.SendBufferSize)
	}
	if len(cfg.Security.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v", cfg.Security.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "postgres"}, wantErr: true},
		{name: "party cap too small", env: map[string]string{"CHAT_MAX_ROOM_PARTIES": "1"}, wantErr: true},
		{name: "default secret in production", env: map[string]string{"APP_ENV": "production"}, wantErr: true},
		{name: "custom secret in production", env: map[string]string{"APP_ENV": "production", "JWT_SECRET": "s3cr3t"}},
		{name: "pong before ping", env: map[string]string{"WEBSOCKET_PING_INTERVAL": "60s", "WEBSOCKET_PONG_TIMEOUT": "30s"}, wantErr: true},
		{name: "s3 without bucket", env: map[string]string{"STORAGE_PROVIDER": "s3"}, wantErr: true},
		{name: "s3 with bucket", env: map[string]string{"STORAGE_PROVIDER": "s3", "AWS_S3_BUCKET": "transcripts"}},
		{name: "stripe without webhook secret", env: map[string]string{"STRIPE_SECRET_KEY": "sk_test"}, wantErr: true},
		{name: "half razorpay keys", env: map[string]string{"RAZORPAY_KEY_ID": "rzp_test"}, wantErr: true},
		{name: "twilio sid without token", env: map[string]string{"TWILIO_ACCOUNT_SID": "AC1"}, wantErr: true},
		{name: "unknown sms provider", env: map[string]string{"SMS_PROVIDER": "pigeon"}, wantErr: true},
		{name: "apns key without team", env: map[string]string{"APNS_KEY_FILE": "/keys/apns.p8"}, wantErr: true},
		{name: "mongo pool inverted", env: map[string]string{"MONGODB_MIN_POOL_SIZE": "50", "MONGODB_MAX_POOL_SIZE": "10"}, wantErr: true},
		{name: "memory driver ignores pool", env: map[string]string{"DATABASE_DRIVER": "memory", "MONGODB_MIN_POOL_SIZE": "50", "MONGODB_MAX_POOL_SIZE": "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "test")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
