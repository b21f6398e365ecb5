package services

import (
	"context"
	"sync"
	"testing"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/repositories/memory"
	"tripchat/pkg/logger"
	"tripchat/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRefunder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRefunder) Refund(ctx context.Context, provider, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, provider+":"+reference)
	return f.err
}

func (f *fakeRefunder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordedChange struct {
	before, after *models.Booking
}

type recordingListener struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (r *recordingListener) BookingChanged(ctx context.Context, before, after *models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, recordedChange{before: before, after: after})
}

func (r *recordingListener) Changes() []recordedChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedChange(nil), r.changes...)
}

type testEnv struct {
	ctx         context.Context
	store       *memory.Store
	log         *logger.Logger
	refunder    *fakeRefunder
	bookings    *BookingService
	access      *AccessService
	presence    *websocket.Presence
	router      *websocket.Router
	trip        *models.Trip
	driverID    primitive.ObjectID
	passengerID primitive.ObjectID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		ctx:         context.Background(),
		store:       memory.NewStore(),
		log:         logger.NewNop(),
		refunder:    &fakeRefunder{},
		presence:    websocket.NewPresence(),
		driverID:    primitive.NewObjectID(),
		passengerID: primitive.NewObjectID(),
	}

	e.trip = &models.Trip{
		DriverID:       e.driverID,
		Origin:         "Pune",
		Destination:    "Mumbai",
		TotalSeats:     3,
		AvailableSeats: 3,
		PricePerSeat:   450,
		Currency:       "INR",
	}
	if err := e.store.Trips.Create(e.ctx, e.trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	e.bookings = NewBookingService(e.store.Bookings, e.store.Trips, e.refunder, e.log)
	e.access = NewAccessService(e.store.Trips, e.store.Bookings, e.log)
	e.router = websocket.NewRouter(e.access, e.presence, 2, e.log)
	return e
}

// pendingBooking creates a one-seat booking for passengerID.
func (e *testEnv) pendingBooking(t *testing.T, passengerID primitive.ObjectID) *models.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(e.ctx, passengerID, e.trip.ID, 1)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return b
}

// eligibleBooking drives a new booking for passengerID to confirmed and paid.
func (e *testEnv) eligibleBooking(t *testing.T, passengerID primitive.ObjectID) *models.Booking {
	t.Helper()
	b := e.pendingBooking(t, passengerID)
	if _, err := e.bookings.ConfirmBooking(e.ctx, b.ID, e.driverID); err != nil {
		t.Fatalf("ConfirmBooking: %v", err)
	}
	b, err := e.bookings.RecordPaymentStatus(e.ctx, b.ID, models.PaymentStatusPaid, "stripe", "pi_"+b.ID.Hex())
	if err != nil {
		t.Fatalf("RecordPaymentStatus: %v", err)
	}
	return b
}

func (e *testEnv) seats(t *testing.T) int {
	t.Helper()
	trip, err := e.store.Trips.GetByID(e.ctx, e.trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	return trip.AvailableSeats
}

// session returns a connected session of userID that presence reports online.
func (e *testEnv) session(userID primitive.ObjectID) *websocket.Session {
	e.presence.MarkOnline(userID)
	return websocket.NewSession(userID, "device-"+userID.Hex(), 64)
}

func (e *testEnv) join(t *testing.T, s *websocket.Session) {
	t.Helper()
	if err := e.router.Join(e.ctx, s, e.trip.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

// drain returns the events queued on s without blocking.
func drain(s *websocket.Session) []*websocket.Event {
	var events []*websocket.Event
	for {
		select {
		case ev, ok := <-s.Outbound():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsOfType(events []*websocket.Event, t websocket.EventType) []*websocket.Event {
	var out []*websocket.Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func assertKind(t *testing.T, err error, want apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperrors.KindOf(err); got != want {
		t.Fatalf("error kind = %s (%v), want %s", got, err, want)
	}
}
