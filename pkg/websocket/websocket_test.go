package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tripchat/internal/apperrors"
	"tripchat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeAuthorizer grants room access from a mutable allow list.
type fakeAuthorizer struct {
	mu      sync.Mutex
	driver  primitive.ObjectID
	allowed map[primitive.ObjectID]bool
	denied  map[primitive.ObjectID]apperrors.Kind
	err     error
	calls   int
}

func newFakeAuthorizer(driver primitive.ObjectID, passengers ...primitive.ObjectID) *fakeAuthorizer {
	a := &fakeAuthorizer{
		driver:  driver,
		allowed: map[primitive.ObjectID]bool{driver: true},
		denied:  make(map[primitive.ObjectID]apperrors.Kind),
	}
	for _, id := range passengers {
		a.allowed[id] = true
	}
	return a
}

func (a *fakeAuthorizer) AuthorizeJoin(ctx context.Context, tripID, userID primitive.ObjectID) (*Parties, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if a.err != nil {
		return nil, a.err
	}
	if kind, ok := a.denied[userID]; ok {
		return nil, apperrors.New(kind, "denied")
	}
	if !a.allowed[userID] {
		return nil, apperrors.ErrNotAuthorized
	}
	parties := &Parties{DriverID: a.driver}
	for id := range a.allowed {
		if id != a.driver {
			parties.PassengerIDs = append(parties.PassengerIDs, id)
		}
	}
	sortIDs(parties.PassengerIDs)
	return parties, nil
}

func (a *fakeAuthorizer) deny(userID primitive.ObjectID, kind apperrors.Kind) {
	a.mu.Lock()
	a.denied[userID] = kind
	a.mu.Unlock()
}

func (a *fakeAuthorizer) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// tokenTable maps raw tokens to user ids.
type tokenTable map[string]primitive.ObjectID

func (t tokenTable) VerifyToken(ctx context.Context, token string) (primitive.ObjectID, error) {
	id, ok := t[token]
	if !ok {
		return primitive.NilObjectID, errors.New("unknown token")
	}
	return id, nil
}

type wsFixture struct {
	ctx       context.Context
	tripID    primitive.ObjectID
	driver    primitive.ObjectID
	passenger primitive.ObjectID
	auth      *fakeAuthorizer
	presence  *Presence
	router    *Router
	manager   *SessionManager
	tokens    tokenTable
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		ctx:       context.Background(),
		tripID:    primitive.NewObjectID(),
		driver:    primitive.NewObjectID(),
		passenger: primitive.NewObjectID(),
		presence:  NewPresence(),
	}
	f.auth = newFakeAuthorizer(f.driver, f.passenger)
	f.router = NewRouter(f.auth, f.presence, 2, logger.NewNop())
	f.tokens = tokenTable{"driver-token": f.driver, "passenger-token": f.passenger}
	f.manager = NewSessionManager(f.tokens, f.presence, f.router, SessionOptions{SendBufferSize: 32}, logger.NewNop())
	return f
}

func (f *wsFixture) connect(t *testing.T, token, device string) *Session {
	t.Helper()
	s, err := f.manager.Connect(f.ctx, token, device)
	if err != nil {
		t.Fatalf("Connect(%s): %v", token, err)
	}
	return s
}

func (f *wsFixture) join(t *testing.T, s *Session) {
	t.Helper()
	if err := f.router.Join(f.ctx, s, f.tripID); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func drainEvents(s *Session) []*Event {
	var events []*Event
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

func filterEvents(events []*Event, t EventType) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func wantKind(t *testing.T, err error, want apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperrors.KindOf(err); got != want {
		t.Fatalf("error kind = %s (%v), want %s", got, err, want)
	}
}
