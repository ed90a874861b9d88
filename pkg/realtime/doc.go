// Package realtime pushes server events to websocket clients.
//
// A client connects to /ws with the same credentials as the HTTP API
// (Authorization header, or ?token= for browsers). After the handshake it
// is placed in two rooms: its account id and its provider id. Handlers
// publish with Hub.Broadcast; Hub.Run relays broadcasts between instances
// over a Redis channel.
package realtime
