package push

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, projectID, credentialsFile string) (*FCMProvider, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) Send(ctx context.Context, notification *Notification) (string, error) {
	id, err := f.client.Send(ctx, buildFCMMessage(notification))
	if err != nil {
		return "", fmt.Errorf("failed to send FCM notification: %w", err)
	}
	return id, nil
}

func buildFCMMessage(n *Notification) *messaging.Message {
	message := &messaging.Message{
		Token: n.Token,
		Data:  n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
	}

	android := &messaging.AndroidConfig{
		CollapseKey: n.CollapseKey,
		Priority:    "normal",
	}
	if n.HighPriority {
		android.Priority = "high"
	}
	if n.TTLSeconds > 0 {
		ttl := time.Duration(n.TTLSeconds) * time.Second
		android.TTL = &ttl
	}
	message.Android = android

	return message
}
