package websocket

import (
	"context"
	"sync"

	"tripchat/internal/apperrors"
	"tripchat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Parties are the identities allowed in a trip room right now.
type Parties struct {
	DriverID     primitive.ObjectID
	PassengerIDs []primitive.ObjectID
}

func (p *Parties) All() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(p.PassengerIDs)+1)
	ids = append(ids, p.DriverID)
	return append(ids, p.PassengerIDs...)
}

func (p *Parties) Includes(userID primitive.ObjectID) bool {
	for _, id := range p.All() {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomAuthorizer decides live room access from current booking state.
// It returns NotAuthorized for third parties and RoomNotEligible for
// legitimate parties whose booking is not confirmed and paid.
type RoomAuthorizer interface {
	AuthorizeJoin(ctx context.Context, tripID, userID primitive.ObjectID) (*Parties, error)
}

// Room is a trip chat room. Its methods are only safe inside Router.WithRoom.
type Room struct {
	id      primitive.ObjectID
	mu      sync.Mutex
	members map[string]*Session
	dead    bool
}

func (rm *Room) TripID() primitive.ObjectID {
	return rm.id
}

func (rm *Room) HasSession(sessionID string) bool {
	_, ok := rm.members[sessionID]
	return ok
}

// UserIDs returns the distinct identities joined to the room.
func (rm *Room) UserIDs() []primitive.ObjectID {
	seen := rm.identities()
	ids := make([]primitive.ObjectID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (rm *Room) HasUser(userID primitive.ObjectID) bool {
	for _, s := range rm.members {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Broadcast delivers ev to every member except the session exceptID.
func (rm *Room) Broadcast(ev *Event, exceptID string) int {
	delivered := 0
	for id, s := range rm.members {
		if id == exceptID {
			continue
		}
		if s.Deliver(ev) {
			delivered++
		}
	}
	return delivered
}

func (rm *Room) identities() map[primitive.ObjectID]int {
	seen := make(map[primitive.ObjectID]int, len(rm.members))
	for _, s := range rm.members {
		seen[s.UserID]++
	}
	return seen
}

// passengerCount counts joined identities other than the driver. The driver
// always has a seat, so passengers share the remaining maxParties-1.
func passengerCount(identities map[primitive.ObjectID]int, driverID primitive.ObjectID) int {
	n := len(identities)
	if _, ok := identities[driverID]; ok {
		n--
	}
	return n
}

// Router maps trip ids to rooms of sessions. Each room is its own exclusive
// section; the router lock only guards the map and is never held while waiting
// on a room.
type Router struct {
	authorizer RoomAuthorizer
	presence   *Presence
	maxParties int
	logger     *logger.Logger

	mu    sync.Mutex
	rooms map[primitive.ObjectID]*Room
}

func NewRouter(authorizer RoomAuthorizer, presence *Presence, maxParties int, log *logger.Logger) *Router {
	if maxParties <= 0 {
		maxParties = 2
	}
	return &Router{
		authorizer: authorizer,
		presence:   presence,
		maxParties: maxParties,
		logger:     log,
		rooms:      make(map[primitive.ObjectID]*Room),
	}
}

// acquire returns the room locked. A room discarded between lookup and lock
// is dead and the lookup is retried.
func (r *Router) acquire(tripID primitive.ObjectID, create bool) *Room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[tripID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			rm = &Room{id: tripID, members: make(map[string]*Session)}
			r.rooms[tripID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
	}
}

func (r *Router) release(rm *Room) {
	if len(rm.members) == 0 {
		r.mu.Lock()
		if r.rooms[rm.id] == rm {
			delete(r.rooms, rm.id)
		}
		r.mu.Unlock()
		rm.dead = true
	}
	rm.mu.Unlock()
}

func (r *Router) Join(ctx context.Context, s *Session, tripID primitive.ObjectID) error {
	if s.State() != SessionConnected {
		return apperrors.New(apperrors.KindAuthenticationFailed, "session is not connected")
	}

	rm := r.acquire(tripID, true)
	defer r.release(rm)

	if rm.HasSession(s.ID) {
		return nil
	}

	parties, err := r.authorizer.AuthorizeJoin(ctx, tripID, s.UserID)
	if err != nil {
		return err
	}

	identities := rm.identities()
	_, present := identities[s.UserID]
	if !present && s.UserID != parties.DriverID && passengerCount(identities, parties.DriverID) >= r.maxParties-1 {
		r.logger.WithTripID(tripID).WithUserID(s.UserID).Warn("Room join rejected, passenger seat taken")
		return apperrors.New(apperrors.KindNotAuthorized, "another passenger is in this trip chat")
	}

	rm.members[s.ID] = s
	s.addRoom(tripID)

	online := make([]primitive.ObjectID, 0, 2)
	for _, id := range parties.All() {
		if r.presence.IsOnline(id) {
			online = append(online, id)
		}
	}
	sortIDs(online)
	s.Deliver(NewTripEvent(EventOnlineUsers, tripID, &OnlineUsersPayload{
		TripID:  tripID.Hex(),
		UserIDs: hexIDs(online),
	}))

	if !present {
		ev := NewTripEvent(EventUserOnline, tripID, &PresencePayload{UserID: s.UserID.Hex()})
		ev.UserID = s.UserID.Hex()
		rm.Broadcast(ev, s.ID)
	}

	r.logger.WithTripID(tripID).WithSessionID(s.ID).WithUserID(s.UserID).Debug("Session joined room")
	return nil
}

// Leave removes s from the room. It reports whether s was a member.
func (r *Router) Leave(s *Session, tripID primitive.ObjectID) bool {
	rm := r.acquire(tripID, false)
	if rm == nil {
		s.removeRoom(tripID)
		return false
	}
	defer r.release(rm)

	if !rm.HasSession(s.ID) {
		s.removeRoom(tripID)
		return false
	}
	delete(rm.members, s.ID)
	s.removeRoom(tripID)
	return true
}

// LeaveAll removes s from every room it joined and returns those trip ids.
func (r *Router) LeaveAll(s *Session) []primitive.ObjectID {
	var left []primitive.ObjectID
	for _, tripID := range s.Rooms() {
		if r.Leave(s, tripID) {
			left = append(left, tripID)
		}
	}
	return left
}

func (r *Router) Broadcast(tripID primitive.ObjectID, ev *Event, exceptSessionID string) int {
	rm := r.acquire(tripID, false)
	if rm == nil {
		return 0
	}
	defer r.release(rm)

	return rm.Broadcast(ev, exceptSessionID)
}

// WithRoom runs fn inside the room's exclusive section. Sequencing, persisting
// and fan-out of a message happen in one such section.
func (r *Router) WithRoom(tripID primitive.ObjectID, fn func(*Room) error) error {
	rm := r.acquire(tripID, true)
	defer r.release(rm)

	return fn(rm)
}

// Reevaluate re-authorizes every identity joined to the trip room and evicts
// those that lost access, sending each evicted session chat_closed. Lookup
// failures other than access denials keep the member in place.
func (r *Router) Reevaluate(ctx context.Context, tripID primitive.ObjectID) []primitive.ObjectID {
	rm := r.acquire(tripID, false)
	if rm == nil {
		return nil
	}
	defer r.release(rm)

	var evicted []primitive.ObjectID
	for userID := range rm.identities() {
		_, err := r.authorizer.AuthorizeJoin(ctx, tripID, userID)
		if err == nil {
			continue
		}

		kind := apperrors.KindOf(err)
		if kind != apperrors.KindNotAuthorized && kind != apperrors.KindRoomNotEligible {
			r.logger.WithTripID(tripID).WithUserID(userID).WithError(err).Error("Failed to re-evaluate room access")
			continue
		}

		closed := NewTripEvent(EventChatClosed, tripID, &ChatClosedPayload{
			TripID: tripID.Hex(),
			Reason: string(kind),
		})
		for id, s := range rm.members {
			if s.UserID != userID {
				continue
			}
			delete(rm.members, id)
			s.removeRoom(tripID)
			s.Deliver(closed)
		}
		evicted = append(evicted, userID)
	}

	sortIDs(evicted)
	if len(evicted) > 0 {
		r.logger.WithTripID(tripID).WithField("evicted", len(evicted)).Info("Evicted parties from trip chat")
	}
	return evicted
}

func (r *Router) IsMember(tripID primitive.ObjectID, sessionID string) bool {
	rm := r.acquire(tripID, false)
	if rm == nil {
		return false
	}
	defer r.release(rm)

	return rm.HasSession(sessionID)
}

func (r *Router) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
