package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioMaxBody is the longest body the Messages API accepts.
const twilioMaxBody = 1600

// twilioMessenger is the part of the Twilio REST client used here.
type twilioMessenger interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type TwilioProvider struct {
	client     twilioMessenger
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{client: client.Api, fromNumber: fromNumber}
}

func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	// the twilio client takes no context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := request.From
	if from == "" {
		from = t.fromNumber
	}
	body := []rune(request.Message)
	if len(body) > twilioMaxBody {
		body = body[:twilioMaxBody]
	}

	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(from)
	params.SetBody(string(body))

	msg, err := t.client.CreateMessage(params)
	if err != nil {
		return nil, fmt.Errorf("twilio sms to %s: %w", request.To, err)
	}

	resp := &SMSResponse{Status: "queued"}
	if msg.Sid != nil {
		resp.MessageID = *msg.Sid
	}
	if msg.Status != nil {
		resp.Status = string(*msg.Status)
	}
	return resp, nil
}
