package websocket

import (
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Presence is the set of identities that currently hold at least one session.
// It is never persisted and is rebuilt from live sessions after a restart.
type Presence struct {
	mu     sync.RWMutex
	online map[primitive.ObjectID]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[primitive.ObjectID]struct{})}
}

// MarkOnline adds userID and reports whether it was absent before.
func (p *Presence) MarkOnline(userID primitive.ObjectID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.online[userID]; ok {
		return false
	}
	p.online[userID] = struct{}{}
	return true
}

// MarkOffline removes userID and reports whether it was present.
func (p *Presence) MarkOffline(userID primitive.ObjectID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.online[userID]; !ok {
		return false
	}
	delete(p.online, userID)
	return true
}

func (p *Presence) IsOnline(userID primitive.ObjectID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.online[userID]
	return ok
}

// OnlineUsers returns a snapshot ordered by id.
func (p *Presence) OnlineUsers() []primitive.ObjectID {
	p.mu.RLock()
	users := make([]primitive.ObjectID, 0, len(p.online))
	for id := range p.online {
		users = append(users, id)
	}
	p.mu.RUnlock()

	sortIDs(users)
	return users
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.online)
}

func sortIDs(ids []primitive.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}
