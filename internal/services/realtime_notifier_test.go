package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripchat/internal/models"
	"tripchat/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type tokenTable map[string]primitive.ObjectID

func (tt tokenTable) VerifyToken(ctx context.Context, token string) (primitive.ObjectID, error) {
	id, ok := tt[token]
	if !ok {
		return primitive.NilObjectID, errors.New("unknown token")
	}
	return id, nil
}

func TestRealtimeNotifierClosesChatOnEligibilityLoss(t *testing.T) {
	e := newTestEnv(t)
	manager := websocket.NewSessionManager(tokenTable{"driver": e.driverID, "passenger": e.passengerID},
		e.presence, e.router, websocket.SessionOptions{HandshakeTimeout: time.Second, SendBufferSize: 32}, e.log)
	e.bookings.AddListener(NewRealtimeNotifier(e.router, manager, e.log))

	b := e.eligibleBooking(t, e.passengerID)

	driver, err := manager.Connect(e.ctx, "driver", "d1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	passenger, err := manager.Connect(e.ctx, "passenger", "p1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	e.join(t, driver)
	e.join(t, passenger)
	drain(driver)
	drain(passenger)

	if _, err := e.bookings.CancelBooking(e.ctx, b.ID, e.passengerID, "plans changed"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	for name, s := range map[string]*websocket.Session{"driver": driver, "passenger": passenger} {
		events := drain(s)
		closed := eventsOfType(events, websocket.EventChatClosed)
		if len(closed) != 1 {
			t.Errorf("%s got %d chat_closed events", name, len(closed))
		}
		updates := eventsOfType(events, websocket.EventTripStatusUpdated)
		if len(updates) != 1 {
			t.Fatalf("%s got %d trip_status_updated events", name, len(updates))
		}
		summary := updates[0].Data.(*models.BookingSummary)
		if summary.Status != models.BookingStatusCancelledByPassenger || summary.ChatEligible {
			t.Errorf("%s summary = %+v", name, summary)
		}
		if s.State() != websocket.SessionConnected {
			t.Errorf("%s session state = %s, eviction must keep it connected", name, s.State())
		}
		if s.InRoom(e.trip.ID) {
			t.Errorf("%s still in room", name)
		}
	}
}

func TestRealtimeNotifierKeepsOtherPassengers(t *testing.T) {
	e := newTestEnv(t)
	manager := websocket.NewSessionManager(tokenTable{"driver": e.driverID}, e.presence, e.router,
		websocket.SessionOptions{HandshakeTimeout: time.Second}, e.log)
	e.bookings.AddListener(NewRealtimeNotifier(e.router, manager, e.log))

	e.eligibleBooking(t, e.passengerID)
	leaving := primitive.NewObjectID()
	b := e.eligibleBooking(t, leaving)

	driver, err := manager.Connect(e.ctx, "driver", "d1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	e.join(t, driver)
	drain(driver)

	if _, err := e.bookings.CancelBooking(e.ctx, b.ID, leaving, ""); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	events := drain(driver)
	if n := len(eventsOfType(events, websocket.EventChatClosed)); n != 0 {
		t.Errorf("driver with another eligible passenger got %d chat_closed", n)
	}
	if !driver.InRoom(e.trip.ID) {
		t.Error("driver evicted although the chat stays open")
	}
}
