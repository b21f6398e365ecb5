package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type APNSProvider struct {
	client *apns2.Client
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load apns auth key %s: %w", keyFile, err)
	}

	tokenProvider := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}

	client := apns2.NewTokenClient(tokenProvider)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{
		client: client,
		topic:  topic,
	}, nil
}

func (a *APNSProvider) Send(ctx context.Context, notification *Notification) (string, error) {
	response, err := a.client.PushWithContext(ctx, a.buildNotification(notification))
	if err != nil {
		return "", fmt.Errorf("apns push: %w", err)
	}

	if !response.Sent() {
		return "", fmt.Errorf("apns rejected %s: %d %s", response.ApnsID, response.StatusCode, response.Reason)
	}

	return response.ApnsID, nil
}

func (a *APNSProvider) buildNotification(n *Notification) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default")
	for key, value := range n.Data {
		p.Custom(key, value)
	}
	// one notification thread per trip conversation
	if tripID := n.Data["trip_id"]; tripID != "" {
		p.ThreadID("trip_" + tripID)
	}

	notification := &apns2.Notification{
		DeviceToken: n.Token,
		Topic:       a.topic,
		Payload:     p,
		CollapseID:  n.CollapseKey,
		Priority:    apns2.PriorityLow,
	}
	if n.HighPriority {
		notification.Priority = apns2.PriorityHigh
	}
	if n.TTLSeconds > 0 {
		notification.Expiration = time.Now().Add(time.Duration(n.TTLSeconds) * time.Second)
	}

	return notification
}
