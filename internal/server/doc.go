// Package server implements the HTTP and WebSocket transport for GoChat.
//
// Connections are authenticated before the upgrade, wrapped in a Client that
// implements chat.Conn, and registered with a Hub that starts their read and
// write pumps. Every inbound frame is handed to the chat engine through the
// Sessions interface; the engine decides who receives what.
//
// The implementation is organized into specialized files for configuration, hub
// management, clients, routing, and HTTP handlers.
package server
