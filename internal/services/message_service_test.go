package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/pkg/cache"
	"tripchat/pkg/maps"
	"tripchat/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeGeocoder struct {
	address string
	err     error
	calls   int
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*maps.GeocodeResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &maps.GeocodeResponse{Results: []maps.GeocodeResult{{Address: f.address}}}, nil
}

type fakeOfflineNotifier struct {
	notified chan *models.Message
}

func (f *fakeOfflineNotifier) NotifyOfflineMessage(ctx context.Context, message *models.Message) error {
	f.notified <- message
	return nil
}

type chatFixture struct {
	*testEnv
	messages  *MessageService
	geocoder  *fakeGeocoder
	offline   *fakeOfflineNotifier
	driver    *websocket.Session
	passenger *websocket.Session
}

func newChatFixture(t *testing.T, cfg MessageConfig) *chatFixture {
	t.Helper()
	e := newTestEnv(t)
	f := &chatFixture{
		testEnv:  e,
		geocoder: &fakeGeocoder{address: "Shivaji Nagar, Pune"},
		offline:  &fakeOfflineNotifier{notified: make(chan *models.Message, 4)},
	}
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 20
	}
	f.messages = NewMessageService(e.store.Messages, e.access, e.router, e.presence, cache.NewMemoryCache(),
		f.geocoder, f.offline, cfg, e.log)

	e.eligibleBooking(t, e.passengerID)
	f.driver = e.session(e.driverID)
	f.passenger = e.session(e.passengerID)
	e.join(t, f.driver)
	e.join(t, f.passenger)
	drain(f.driver)
	drain(f.passenger)
	return f
}

func (f *chatFixture) send(content string) (*models.Message, error) {
	return f.messages.Send(f.ctx, f.passenger, &websocket.SendMessageRequest{
		TripID:  f.trip.ID,
		Content: content,
		Type:    models.MessageTypeText,
	})
}

func TestSendDeliversToBothParties(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	first, err := f.send("  on my way  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if first.Content != "on my way" {
		t.Errorf("content = %q, want trimmed", first.Content)
	}
	if first.ReceiverID != f.driverID || first.SenderID != f.passengerID {
		t.Errorf("sender/receiver = %s/%s", first.SenderID.Hex(), first.ReceiverID.Hex())
	}

	second, err := f.messages.Send(f.ctx, f.driver, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "ok"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("sequences = %d, %d", first.Sequence, second.Sequence)
	}
	if second.ReceiverID != f.passengerID {
		t.Errorf("driver message receiver = %s", second.ReceiverID.Hex())
	}

	for name, s := range map[string]*websocket.Session{"driver": f.driver, "passenger": f.passenger} {
		events := eventsOfType(drain(s), websocket.EventNewMessage)
		if len(events) != 2 {
			t.Fatalf("%s got %d new_message events, want 2", name, len(events))
		}
		if msg := events[0].Data.(*models.Message); msg.Sequence != 1 {
			t.Errorf("%s first event sequence = %d", name, msg.Sequence)
		}
	}

	history, err := f.messages.History(f.ctx, f.trip.ID, f.passengerID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID || history[1].ID != second.ID {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestConcurrentSendersShareOneOrder(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})
	const perSender = 20

	var wg sync.WaitGroup
	errs := make(chan error, 2*perSender)
	for _, sender := range []*websocket.Session{f.driver, f.passenger} {
		wg.Add(1)
		go func(s *websocket.Session) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.messages.Send(f.ctx, s, &websocket.SendMessageRequest{
					TripID:  f.trip.ID,
					Content: fmt.Sprintf("m-%d", i),
				})
				if err != nil {
					errs <- err
				}
			}
		}(sender)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Send: %v", err)
	}

	sequences := func(events []*websocket.Event) []int64 {
		var out []int64
		for _, ev := range eventsOfType(events, websocket.EventNewMessage) {
			out = append(out, ev.Data.(*models.Message).Sequence)
		}
		return out
	}
	driverSeen := sequences(drain(f.driver))
	passengerSeen := sequences(drain(f.passenger))

	history, err := f.messages.History(f.ctx, f.trip.ID, f.driverID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2*perSender || len(driverSeen) != 2*perSender || len(passengerSeen) != 2*perSender {
		t.Fatalf("history %d, driver %d, passenger %d; want %d each", len(history), len(driverSeen), len(passengerSeen), 2*perSender)
	}
	for i, msg := range history {
		want := int64(i + 1)
		if msg.Sequence != want || driverSeen[i] != want || passengerSeen[i] != want {
			t.Fatalf("position %d: history %d, driver %d, passenger %d; want %d",
				i, msg.Sequence, driverSeen[i], passengerSeen[i], want)
		}
	}
}

func TestSendValidation(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	tests := []struct {
		name string
		req  *websocket.SendMessageRequest
		want apperrors.Kind
	}{
		{"blank text", &websocket.SendMessageRequest{Content: "   "}, apperrors.KindEmptyContent},
		{"too long", &websocket.SendMessageRequest{Content: strings.Repeat("x", 21)}, apperrors.KindInvalidInput},
		{"unknown type", &websocket.SendMessageRequest{Content: "hi", Type: "sticker"}, apperrors.KindInvalidInput},
		{"location without coordinates", &websocket.SendMessageRequest{Type: models.MessageTypeLocation}, apperrors.KindInvalidInput},
		{"location out of range", &websocket.SendMessageRequest{
			Type:     models.MessageTypeLocation,
			Location: &models.MessageLocation{Latitude: 91, Longitude: 10},
		}, apperrors.KindInvalidInput},
		{"receiver outside the chat", &websocket.SendMessageRequest{
			Content:    "hi",
			ReceiverID: func() *primitive.ObjectID { id := primitive.NewObjectID(); return &id }(),
		}, apperrors.KindNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.TripID = f.trip.ID
			_, err := f.messages.Send(f.ctx, f.passenger, tt.req)
			assertKind(t, err, tt.want)
		})
	}

	if n, _ := f.store.Messages.LastSequence(f.ctx, f.trip.ID); n != 0 {
		t.Errorf("rejected sends stored messages, last sequence = %d", n)
	}
}

func TestSendLocationFillsAddress(t *testing.T) {
	f := newChatFixture(t, MessageConfig{MaxMessageLength: 200})

	msg, err := f.messages.Send(f.ctx, f.passenger, &websocket.SendMessageRequest{
		TripID:   f.trip.ID,
		Type:     models.MessageTypeLocation,
		Location: &models.MessageLocation{Latitude: 18.5308, Longitude: 73.8475},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Location.Address != "Shivaji Nagar, Pune" || msg.Content != "Shivaji Nagar, Pune" {
		t.Errorf("location message = %q / %q", msg.Content, msg.Location.Address)
	}

	f.geocoder.err = errors.New("quota exceeded")
	msg, err = f.messages.Send(f.ctx, f.passenger, &websocket.SendMessageRequest{
		TripID:   f.trip.ID,
		Type:     models.MessageTypeLocation,
		Location: &models.MessageLocation{Latitude: 18.5, Longitude: 73.25},
	})
	if err != nil {
		t.Fatalf("Send with failing geocoder: %v", err)
	}
	if msg.Content != "18.500000, 73.250000" || msg.Location.Address != "" {
		t.Errorf("fallback content = %q, address = %q", msg.Content, msg.Location.Address)
	}

	calls := f.geocoder.calls
	if _, err := f.messages.Send(f.ctx, f.passenger, &websocket.SendMessageRequest{
		TripID:   f.trip.ID,
		Type:     models.MessageTypeLocation,
		Content:  "pickup here",
		Location: &models.MessageLocation{Latitude: 1, Longitude: 2, Address: "Gate 3"},
	}); err != nil {
		t.Fatalf("Send with address: %v", err)
	}
	if f.geocoder.calls != calls {
		t.Error("geocoder called although the address was given")
	}
}

func TestSendRequiresJoinedSession(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	f.router.Leave(f.passenger, f.trip.ID)
	_, err := f.send("hello")
	assertKind(t, err, apperrors.KindNotInRoom)
	if !apperrors.Retryable(err) {
		t.Error("not_in_room should be retryable")
	}

	other := f.session(f.passengerID)
	_, err = f.messages.Send(f.ctx, other, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "hi"})
	assertKind(t, err, apperrors.KindNotInRoom)
}

func TestSendAuthorizesLive(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	bookings, _ := f.store.Bookings.GetByTrip(f.ctx, f.trip.ID)
	if _, err := f.bookings.StartTrip(f.ctx, bookings[0].ID, f.driverID); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}

	// no realtime listener is registered, so the sessions are still in the room
	_, err := f.send("still there?")
	assertKind(t, err, apperrors.KindRoomNotEligible)

	stranger := f.session(primitive.NewObjectID())
	_, err = f.messages.Send(f.ctx, stranger, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "hi"})
	assertKind(t, err, apperrors.KindNotAuthorized)
}

func TestSendRateLimited(t *testing.T) {
	f := newChatFixture(t, MessageConfig{SendRateLimit: 2, SendRateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := f.send("ping"); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	_, err := f.send("ping")
	assertKind(t, err, apperrors.KindRateLimited)

	if _, err := f.messages.Send(f.ctx, f.driver, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "pong"}); err != nil {
		t.Errorf("limit is per user, driver send failed: %v", err)
	}
}

func TestSendRecoversFromTakenSequence(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	if _, err := f.send("one"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	f.store.Messages.FailNextCreate(apperrors.New(apperrors.KindConflict, "message sequence already taken"))

	msg, err := f.send("two")
	if err != nil {
		t.Fatalf("Send after conflict: %v", err)
	}
	if msg.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", msg.Sequence)
	}

	f.store.Messages.FailNextCreate(errors.New("disk full"))
	if _, err := f.send("three"); err == nil {
		t.Fatal("expected store failure")
	}
	if msg, err := f.send("four"); err != nil || msg.Sequence != 3 {
		t.Errorf("send after failure = %+v, %v", msg, err)
	}
}

func TestSendNotifiesOfflineReceiver(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})

	if _, err := f.send("online"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case <-f.offline.notified:
		t.Fatal("online receiver got an offline notification")
	default:
	}

	f.presence.MarkOffline(f.driverID)
	msg, err := f.send("are you there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-f.offline.notified:
		if got.ID != msg.ID || got.ReceiverID != f.driverID {
			t.Errorf("notified about %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("offline receiver was not notified")
	}
}

func TestSendToMultiplePassengers(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})
	second := primitive.NewObjectID()
	f.eligibleBooking(t, second)

	// only the passenger already in the room can be the implicit receiver
	msg, err := f.messages.Send(f.ctx, f.driver, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ReceiverID != f.passengerID {
		t.Errorf("receiver = %s, want joined passenger", msg.ReceiverID.Hex())
	}

	msg, err = f.messages.Send(f.ctx, f.driver, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "hi", ReceiverID: &second})
	if err != nil {
		t.Fatalf("Send with receiver: %v", err)
	}
	if msg.ReceiverID != second {
		t.Errorf("receiver = %s, want explicit", msg.ReceiverID.Hex())
	}

	f.router.Leave(f.passenger, f.trip.ID)
	_, err = f.messages.Send(f.ctx, f.driver, &websocket.SendMessageRequest{TripID: f.trip.ID, Content: "anyone?"})
	assertKind(t, err, apperrors.KindInvalidInput)
}

func TestEditMessage(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})
	msg, err := f.send("at gate 2")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(f.driver)

	_, err = f.messages.Edit(f.ctx, f.driver, msg.ID, "hijack")
	assertKind(t, err, apperrors.KindNotAuthorized)
	_, err = f.messages.Edit(f.ctx, f.passenger, msg.ID, " ")
	assertKind(t, err, apperrors.KindEmptyContent)
	_, err = f.messages.Edit(f.ctx, f.passenger, primitive.NewObjectID(), "x")
	assertKind(t, err, apperrors.KindNotFound)

	edited, err := f.messages.Edit(f.ctx, f.passenger, msg.ID, "at gate 3")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !edited.Edited || edited.EditedAt == nil || edited.Content != "at gate 3" {
		t.Errorf("edited = %+v", edited)
	}
	if edited.Sequence != msg.Sequence {
		t.Errorf("edit changed sequence")
	}
	if events := eventsOfType(drain(f.driver), websocket.EventMessageEdited); len(events) != 1 {
		t.Errorf("driver got %d message_edited events", len(events))
	}

	stored, _ := f.store.Messages.GetByID(f.ctx, msg.ID)
	if stored.Content != "at gate 3" || !stored.Edited {
		t.Errorf("stored = %+v", stored)
	}

	f.router.Leave(f.passenger, f.trip.ID)
	_, err = f.messages.Edit(f.ctx, f.passenger, msg.ID, "gate 4")
	assertKind(t, err, apperrors.KindNotInRoom)
}

func TestHistoryAccess(t *testing.T) {
	f := newChatFixture(t, MessageConfig{})
	if _, err := f.send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err := f.messages.History(f.ctx, f.trip.ID, primitive.NewObjectID())
	assertKind(t, err, apperrors.KindNotAuthorized)

	history, err := f.messages.History(f.ctx, f.trip.ID, f.driverID)
	if err != nil || len(history) != 1 {
		t.Errorf("driver history = %d, %v", len(history), err)
	}
}
