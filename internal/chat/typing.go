package chat

import (
	"sort"
	"sync"
	"time"
)

// TypingTracker keeps, per room, the connections whose user is currently
// typing. With a positive ttl every entry expires on its own unless it is
// refreshed by another start; expired entries are handed to onExpire.
type TypingTracker struct {
	mu       sync.Mutex
	rooms    map[string]map[string]*typingEntry
	ttl      time.Duration
	onExpire func(roomID string, conn Conn)
	closed   bool
}

type typingEntry struct {
	conn  Conn
	timer *time.Timer
}

// NewTypingTracker creates a tracker. A zero ttl disables expiry.
func NewTypingTracker(ttl time.Duration, onExpire func(roomID string, conn Conn)) *TypingTracker {
	return &TypingTracker{
		rooms:    make(map[string]map[string]*typingEntry),
		ttl:      ttl,
		onExpire: onExpire,
	}
}

// Start marks conn as typing in roomID. It returns true when the entry is
// new; a repeated start replaces the entry with a fresh expiry.
func (t *TypingTracker) Start(roomID string, conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}

	entries, ok := t.rooms[roomID]
	if !ok {
		entries = make(map[string]*typingEntry)
		t.rooms[roomID] = entries
	}
	previous, exists := entries[conn.ID()]
	if exists && previous.timer != nil {
		// A fire already waiting on mu finds a different entry and does nothing.
		previous.timer.Stop()
	}

	entry := &typingEntry{conn: conn}
	if t.ttl > 0 {
		entry.timer = time.AfterFunc(t.ttl, func() { t.expire(roomID, conn.ID(), entry) })
	}
	entries[conn.ID()] = entry
	return !exists
}

// Stop clears the typing entry of conn in roomID and reports whether one
// existed.
func (t *TypingTracker) Stop(roomID string, conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(roomID, conn.ID(), nil)
}

// ClearConnection removes every typing entry held by conn and returns the
// rooms it was typing in.
func (t *TypingTracker) ClearConnection(conn Conn) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []string
	for roomID, entries := range t.rooms {
		if _, ok := entries[conn.ID()]; ok {
			cleared = append(cleared, roomID)
		}
	}
	for _, roomID := range cleared {
		t.removeLocked(roomID, conn.ID(), nil)
	}
	sort.Strings(cleared)
	return cleared
}

// Typing returns the sorted ids of users typing in roomID.
func (t *TypingTracker) Typing(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(t.rooms[roomID]))
	for _, entry := range t.rooms[roomID] {
		id := entry.conn.Identity().ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every pending expiry timer and drops all entries.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entries := range t.rooms {
		for _, entry := range entries {
			if entry.timer != nil {
				entry.timer.Stop()
			}
		}
	}
	t.rooms = make(map[string]map[string]*typingEntry)
	t.closed = true
}

func (t *TypingTracker) expire(roomID, connID string, entry *typingEntry) {
	t.mu.Lock()
	removed := t.removeLocked(roomID, connID, entry)
	t.mu.Unlock()

	if removed && t.onExpire != nil {
		t.onExpire(roomID, entry.conn)
	}
}

// removeLocked drops the entry for connID in roomID. When want is non-nil the
// entry is only removed if it is still that exact entry, so a timer that fired
// after a stop and a new start leaves the new entry alone.
func (t *TypingTracker) removeLocked(roomID, connID string, want *typingEntry) bool {
	entries, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	entry, ok := entries[connID]
	if !ok || (want != nil && entry != want) {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(entries, connID)
	if len(entries) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}
