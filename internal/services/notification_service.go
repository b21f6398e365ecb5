package services

import (
	"context"
	"fmt"

	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"
	"tripchat/internal/utils"
	"tripchat/pkg/logger"
	"tripchat/pkg/push"
	"tripchat/pkg/sms"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const pushPreviewLength = 120

// NotificationService sends booking SMS and chat push notifications.
// Any provider may be nil, in which case that channel is skipped.
type NotificationService struct {
	users   interfaces.UserRepository
	sms     sms.SMSProvider
	smsFrom string
	fcm     push.Provider
	apns    push.Provider
	logger  *logger.Logger

	// run starts out-of-band deliveries; tests replace it to run inline.
	run func(func())
}

func NewNotificationService(
	users interfaces.UserRepository,
	smsProvider sms.SMSProvider,
	smsFrom string,
	fcm push.Provider,
	apns push.Provider,
	log *logger.Logger,
) *NotificationService {
	return &NotificationService{
		users:   users,
		sms:     smsProvider,
		smsFrom: smsFrom,
		fcm:     fcm,
		apns:    apns,
		logger:  log,
		run:     func(fn func()) { go fn() },
	}
}

type smsNotice struct {
	to   primitive.ObjectID
	body string
}

func bookingNotices(before, after *models.Booking) []smsNotice {
	ref := after.ID.Hex()
	if before == nil {
		return []smsNotice{{to: after.DriverID, body: fmt.Sprintf("New booking request %s for %d seat(s).", ref, after.NumberOfSeats)}}
	}
	if before.Status == after.Status {
		return nil
	}

	switch after.Status {
	case models.BookingStatusConfirmed:
		return []smsNotice{{to: after.PassengerID, body: fmt.Sprintf("Your booking %s has been confirmed by the driver.", ref)}}
	case models.BookingStatusCancelledByDriver:
		if before.Status == models.BookingStatusPending {
			return []smsNotice{{to: after.PassengerID, body: fmt.Sprintf("Your booking request %s was declined by the driver.", ref)}}
		}
		return []smsNotice{{to: after.PassengerID, body: fmt.Sprintf("Your booking %s was cancelled by the driver.", ref)}}
	case models.BookingStatusCancelledByPassenger:
		return []smsNotice{{to: after.DriverID, body: fmt.Sprintf("Booking %s was cancelled by the passenger.", ref)}}
	}
	return nil
}

func (n *NotificationService) BookingChanged(ctx context.Context, before, after *models.Booking) {
	notices := bookingNotices(before, after)
	chatOpened := before != nil && before.ChatOpenedAt == nil && after.ChatOpenedAt != nil
	if len(notices) == 0 && !chatOpened {
		return
	}

	n.run(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), utils.NotificationTimeout)
		defer cancel()

		for _, notice := range notices {
			n.sendSMS(ctx, notice)
		}
		if chatOpened {
			data := map[string]string{
				"type":       "chat_opened",
				"trip_id":    after.TripID.Hex(),
				"booking_id": after.ID.Hex(),
			}
			for _, userID := range []primitive.ObjectID{after.PassengerID, after.DriverID} {
				n.pushToUser(ctx, userID, &push.Notification{
					Title:       "Trip chat is open",
					Body:        "You can now message the other party of your trip.",
					Data:        data,
					CollapseKey: "chat_" + after.TripID.Hex(),
				})
			}
		}
	})
}

func (n *NotificationService) sendSMS(ctx context.Context, notice smsNotice) {
	if n.sms == nil {
		return
	}
	log := n.logger.WithUserID(notice.to)

	user, err := n.users.GetByID(ctx, notice.to)
	if err != nil {
		log.WithError(err).Warn("sms recipient lookup failed")
		return
	}
	phone := utils.NormalizePhone(user.Phone)
	if !utils.IsValidPhone(phone) {
		log.WithField("phone", utils.MaskPhone(user.Phone)).Debug("no usable phone number, sms skipped")
		return
	}

	resp, err := n.sms.SendSMS(ctx, &sms.SMSRequest{
		To:      phone,
		From:    n.smsFrom,
		Message: notice.body,
		Type:    "transactional",
	})
	if err != nil {
		log.WithError(err).Warn("booking sms failed")
		return
	}
	log.WithField("message_id", resp.MessageID).Debug("booking sms sent")
}

// NotifyOfflineMessage pushes a preview of message to every device of its receiver.
func (n *NotificationService) NotifyOfflineMessage(ctx context.Context, message *models.Message) error {
	title := "New message"
	if sender, err := n.users.GetByID(ctx, message.SenderID); err == nil && sender.DisplayName() != "" {
		title = sender.DisplayName()
	}

	return n.pushToUser(ctx, message.ReceiverID, &push.Notification{
		Title: title,
		Body:  utils.TruncateString(message.Content, pushPreviewLength),
		Data: map[string]string{
			"type":       "new_message",
			"trip_id":    message.TripID.Hex(),
			"message_id": message.ID.Hex(),
		},
		CollapseKey:  "trip_" + message.TripID.Hex(),
		HighPriority: true,
	})
}

// pushToUser fans template out to each registered device and reports the last failure.
func (n *NotificationService) pushToUser(ctx context.Context, userID primitive.ObjectID, template *push.Notification) error {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load push recipient: %w", err)
	}

	var lastErr error
	for _, device := range user.DeviceTokens {
		provider := n.fcm
		if device.Platform == models.DevicePlatformIOS {
			provider = n.apns
		}
		if provider == nil || device.Token == "" {
			continue
		}

		notification := *template
		notification.Token = device.Token
		if _, err := provider.Send(ctx, &notification); err != nil {
			n.logger.WithUserID(userID).WithField("platform", device.Platform).WithError(err).Warn("push delivery failed")
			lastErr = err
		}
	}
	return lastErr
}
