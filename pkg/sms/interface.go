package sms

import "context"

// SMSProvider delivers booking status texts to a party without the app open.
type SMSProvider interface {
	SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error)
}

// SMSRequest addresses one recipient. To is E.164; an empty From uses the
// provider's configured sender.
type SMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
	Type    string `json:"type"` // transactional, promotional
}

type SMSResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
