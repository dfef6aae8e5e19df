package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
)

// PresenceStore persists the online flag of a user.
type PresenceStore interface {
	UpdateUserPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}

// Presence is the process-wide registry of identity to live connections.
// An identity is online while it has at least one registered connection.
//
// Every change broadcasts the full online snapshot to all registered
// connections while the registry lock is held, so snapshots reach clients in
// the order the registry changed. The persisted online flag is written under
// a per-identity lock so the stored value follows the last transition.
type Presence struct {
	mu    sync.RWMutex
	conns map[string]map[string]Conn

	store PresenceStore
	users keyedMutex
	now   func() time.Time
}

// NewPresence creates an empty registry. store may be nil.
func NewPresence(store PresenceStore) *Presence {
	return &Presence{
		conns: make(map[string]map[string]Conn),
		store: store,
		now:   time.Now,
	}
}

// Register adds conn to its identity's connection set.
func (p *Presence) Register(ctx context.Context, conn Conn) {
	userID := conn.Identity().ID
	unlock := p.users.Lock(userID)
	defer unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]Conn)
		p.conns[userID] = set
	}
	if _, dup := set[conn.ID()]; dup {
		p.mu.Unlock()
		return
	}
	set[conn.ID()] = conn
	first := len(set) == 1
	online := len(p.conns)
	p.broadcastSnapshotLocked()
	p.mu.Unlock()

	logger.Info("Client registered", "user", userID, "conn", conn.ID(), "online", online)
	if first {
		p.persist(ctx, userID, true)
	}
}

// Unregister removes conn from its identity's connection set. Removing a pair
// that is not registered is a no-op.
func (p *Presence) Unregister(ctx context.Context, conn Conn) {
	userID := conn.Identity().ID
	unlock := p.users.Lock(userID)
	defer unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if _, ok := set[conn.ID()]; !ok {
		p.mu.Unlock()
		return
	}
	delete(set, conn.ID())
	last := len(set) == 0
	if last {
		delete(p.conns, userID)
	}
	online := len(p.conns)
	p.broadcastSnapshotLocked()
	p.mu.Unlock()

	logger.Info("Client unregistered", "user", userID, "conn", conn.ID(), "online", online)
	if last {
		p.persist(ctx, userID, false)
	}
}

func (p *Presence) persist(ctx context.Context, userID string, online bool) {
	if p.store == nil {
		return
	}
	if err := p.store.UpdateUserPresence(ctx, userID, online, p.now()); err != nil {
		logger.Warn("Error updating user presence", "user", userID, "online", online, "error", err)
	}
}

// IsOnline reports whether userID has at least one registered connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// Has reports whether conn is currently registered.
func (p *Presence) Has(conn Conn) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.conns[conn.Identity().ID][conn.ID()]
	return ok
}

// Snapshot returns the sorted ids of all online identities.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// ConnectionsOf returns the live connections of userID.
func (p *Presence) ConnectionsOf(userID string) []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.conns[userID]
	conns := make([]Conn, 0, len(set))
	for _, conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of registered connections.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, set := range p.conns {
		n += len(set)
	}
	return n
}

func (p *Presence) snapshotLocked() []string {
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Presence) broadcastSnapshotLocked() {
	frame := encodeEvent(EventUsersOnline, "", OnlineUsersPayload{UserIDs: p.snapshotLocked()})
	if frame == nil {
		return
	}
	for _, set := range p.conns {
		for _, conn := range set {
			conn.Send(frame)
		}
	}
}
