package deskpilot

import "context"

// Server is the host-side WebSocket command server. It accepts connections
// from companion clients on the local network, dispatches their JSON
// commands, and can push broadcast messages to every connected client.
//
// Example usage:
//
//	import "github.com/deskpilot/deskpilot/ws"
//
//	server := ws.New(ws.NewConfig(8080, dispatcher, ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(context.Background())
type Server interface {
	// Start binds the listening socket and begins accepting connections.
	// Starting a server that is already listening is a no-op; the call
	// returns nil and the condition is reported through Status, not as an
	// error.
	//
	// Returns an error only if the address cannot be bound.
	Start(ctx context.Context) error

	// Stop is a best-effort teardown: it closes the listener so no new
	// connections are accepted. Sessions that are already open are allowed
	// to run to completion independently and clean themselves up.
	Stop(ctx context.Context) error

	// Status reports whether the server is listening, the bound port, the
	// current client count, and the host's local network IP. The client
	// count is approximate under concurrent connect/disconnect churn.
	Status() Status

	// Broadcast fans the given text frame out to every connected client.
	// Delivery is best effort per client; a client whose outbound queue is
	// full or whose session is dying does not block or fail the others.
	//
	// Returns an error if the server is not running.
	Broadcast(ctx context.Context, message string) error
}

// Client represents one connected companion session.
//
// Each client has a unique identifier generated at accept time and an
// outbound message queue drained by its own writer. The client's context
// is cancelled when the connection closes.
type Client interface {
	// ID returns the unique identifier generated for this connection.
	ID() string

	// RemoteAddr returns the client's network address ("IP:port").
	RemoteAddr() string

	// Context returns the session lifecycle context, cancelled on close.
	Context() context.Context

	// Send queues a text frame for delivery to this client. The frame is
	// written by the session's writer goroutine, never by the caller, so
	// concurrent senders cannot interleave frames on the wire.
	//
	// Returns an error if the connection is closed or ctx is cancelled.
	Send(ctx context.Context, message []byte) error

	// Close closes the connection with a normal closure code.
	Close(ctx context.Context) error

	// IsAlive reports whether the connection is still active.
	IsAlive() bool
}

// Status is a point-in-time snapshot of the server.
type Status struct {
	Running     bool   `json:"running"`
	Port        int    `json:"port"`
	ClientCount int    `json:"client_count"`
	LocalIP     string `json:"local_ip"`
}
