// Package server implements the chat relay: a TCP accept loop that runs one
// session per connection, a registry of active peers, and sender-excluding
// broadcast. Clients send "/count", "/broadcast <text>" or anything else to be
// echoed back.
//
// The implementation is split into files for configuration, the registry and
// broadcaster, peers and their transports, sessions, the operator console, and
// the optional HTTP gateway that admits WebSocket clients into the same relay.
package server
