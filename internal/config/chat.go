package config

import (
	"fmt"
	"time"
)

type ChatConfig struct {
	MaxRoomParties    int           `yaml:"max_room_parties"`
	MaxMessageLength  int           `yaml:"max_message_length"`
	SendRateLimit     int           `yaml:"send_rate_limit"`
	SendRateWindow    time.Duration `yaml:"send_rate_window"`
	GeocodeTimeout    time.Duration `yaml:"geocode_timeout"`
	ArchiveOnComplete bool          `yaml:"archive_on_complete"`
}

func loadChatConfig() *ChatConfig {
	return &ChatConfig{
		MaxRoomParties:    getEnvAsInt("CHAT_MAX_ROOM_PARTIES", 2),
		MaxMessageLength:  getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 1000),
		SendRateLimit:     getEnvAsInt("CHAT_SEND_RATE_LIMIT", 30),
		SendRateWindow:    getEnvAsDuration("CHAT_SEND_RATE_WINDOW", time.Minute),
		GeocodeTimeout:    getEnvAsDuration("CHAT_GEOCODE_TIMEOUT", 2*time.Second),
		ArchiveOnComplete: getEnvAsBool("CHAT_ARCHIVE_ON_COMPLETE", true),
	}
}

func (c *ChatConfig) validate() error {
	if c.MaxRoomParties < 2 {
		return fmt.Errorf("CHAT_MAX_ROOM_PARTIES must be at least 2")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("CHAT_MAX_MESSAGE_LENGTH must be positive")
	}
	if c.SendRateLimit > 0 && c.SendRateWindow <= 0 {
		return fmt.Errorf("CHAT_SEND_RATE_WINDOW must be positive when CHAT_SEND_RATE_LIMIT is set")
	}
	return nil
}
