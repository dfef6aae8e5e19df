package chat

import "sync"

// RoomIndex is the runtime mapping of room id to subscribed connections. It
// also keeps the reverse mapping so a closing connection can be removed from
// every room at once. Subscriptions are never persisted.
type RoomIndex struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	byConn map[string]map[string]struct{}
}

// NewRoomIndex creates an empty index.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds conn to roomID. It returns false if conn was already
// subscribed.
func (x *RoomIndex) Subscribe(roomID string, conn Conn) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	subscribers, ok := x.rooms[roomID]
	if !ok {
		subscribers = make(map[string]Conn)
		x.rooms[roomID] = subscribers
	}
	if _, exists := subscribers[conn.ID()]; exists {
		return false
	}
	subscribers[conn.ID()] = conn

	joined, ok := x.byConn[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		x.byConn[conn.ID()] = joined
	}
	joined[roomID] = struct{}{}
	return true
}

// Unsubscribe removes conn from roomID. It returns false if conn was not
// subscribed.
func (x *RoomIndex) Unsubscribe(roomID string, conn Conn) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.unsubscribeLocked(roomID, conn.ID())
}

// UnsubscribeAll removes conn from every room and returns the rooms it left.
func (x *RoomIndex) UnsubscribeAll(conn Conn) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	joined := x.byConn[conn.ID()]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		x.unsubscribeLocked(roomID, conn.ID())
	}
	return left
}

func (x *RoomIndex) unsubscribeLocked(roomID, connID string) bool {
	subscribers, ok := x.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := subscribers[connID]; !exists {
		return false
	}
	delete(subscribers, connID)
	if len(subscribers) == 0 {
		delete(x.rooms, roomID)
	}

	if joined, ok := x.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(x.byConn, connID)
		}
	}
	return true
}

// IsSubscribed reports whether the connection connID is subscribed to roomID.
func (x *RoomIndex) IsSubscribed(roomID, connID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[roomID][connID]
	return ok
}

// Subscribers returns the connections currently subscribed to roomID.
func (x *RoomIndex) Subscribers(roomID string) []Conn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	subscribers := x.rooms[roomID]
	conns := make([]Conn, 0, len(subscribers))
	for _, conn := range subscribers {
		conns = append(conns, conn)
	}
	return conns
}

// RoomsOf returns the rooms the connection connID is subscribed to.
func (x *RoomIndex) RoomsOf(connID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	joined := x.byConn[connID]
	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Broadcast queues frame on every subscriber of roomID except the connection
// whose id is except. Frames are queued while the index is read-locked so a
// connection that has been unsubscribed never receives a later broadcast.
func (x *RoomIndex) Broadcast(roomID string, frame []byte, except string) int {
	if frame == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	delivered := 0
	for id, conn := range x.rooms[roomID] {
		if except != "" && id == except {
			continue
		}
		if conn.Send(frame) {
			delivered++
		}
	}
	return delivered
}
