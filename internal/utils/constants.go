package utils

import "time"

// Application Constants
const (
	AppName    = "tripchat"
	AppVersion = "1.0.0"

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Booking
	MinRatingScore     = 1
	MaxRatingScore     = 5
	MaxCancelReasonLen = 500

	// Chat
	MaxMessageLength = 1000

	// Notification
	NotificationTimeout = 30 * time.Second
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheWebhookPrefix   = "webhook:"
	CacheRateLimitPrefix = "rate_limit:"
)

// Context keys set by middleware
const (
	ContextUserID    = "user_id"
	ContextUserRole  = "user_role"
	ContextRequestID = "request_id"
)
