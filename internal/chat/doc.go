// Package chat is the connection, presence, and broadcast engine of the
// rooms hub.
//
// The engine tracks which identities are online, which connections are
// subscribed to which rooms, and who is typing where. It routes room
// messages, read receipts, reactions, and private messages to the right
// connections. Persistent state lives behind the store.Store collaborator;
// everything held here is runtime-only and owned by a single component per
// table (Presence, RoomIndex, TypingTracker), mutated only through its
// methods.
package chat
