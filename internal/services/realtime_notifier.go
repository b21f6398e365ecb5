package services

import (
	"context"

	"tripchat/internal/models"
	"tripchat/pkg/logger"
	"tripchat/pkg/websocket"
)

// RealtimeNotifier keeps live sessions in step with booking transitions.
type RealtimeNotifier struct {
	router   *websocket.Router
	sessions *websocket.SessionManager
	logger   *logger.Logger
}

func NewRealtimeNotifier(router *websocket.Router, sessions *websocket.SessionManager, log *logger.Logger) *RealtimeNotifier {
	return &RealtimeNotifier{
		router:   router,
		sessions: sessions,
		logger:   log,
	}
}

func (n *RealtimeNotifier) BookingChanged(ctx context.Context, before, after *models.Booking) {
	if before != nil && before.ChatEligible() && !after.ChatEligible() {
		evicted := n.router.Reevaluate(ctx, after.TripID)
		if len(evicted) > 0 {
			n.logger.WithTripID(after.TripID).WithBookingID(after.ID).WithField("evicted", len(evicted)).
				Info("trip chat closed for parties that lost eligibility")
		}
	}

	ev := websocket.NewTripEvent(websocket.EventTripStatusUpdated, after.TripID, after.Summary())
	n.sessions.NotifyUser(after.PassengerID, ev)
	n.sessions.NotifyUser(after.DriverID, ev)
}
