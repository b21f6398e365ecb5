package push

import "context"

// Provider delivers a single notification to one device token.
type Provider interface {
	Send(ctx context.Context, notification *Notification) (string, error)
}

type Notification struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
	// Data is delivered to the app alongside the alert, e.g. trip_id.
	Data map[string]string `json:"data,omitempty"`
	// CollapseKey lets a newer notification replace an undelivered older one.
	CollapseKey  string `json:"collapse_key,omitempty"`
	HighPriority bool   `json:"high_priority,omitempty"`
	TTLSeconds   int    `json:"ttl_seconds,omitempty"`
}
