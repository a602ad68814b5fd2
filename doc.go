// Package deskpilot lets a phone or browser on the local network remote-
// control this computer's media, volume, brightness, keyboard, and mouse
// over a plain WebSocket connection.
//
// # Architecture
//
// The server accepts any number of concurrent clients. Each accepted
// connection becomes a session with two goroutines: a reader that decodes
// inbound JSON commands, dispatches them, and queues the response, and a
// writer that drains the session's outbound queue onto the wire. Broadcast
// pushes from the host and the session's own command responses share that
// queue, so the writer is the single point that touches the transport and
// frames never interleave.
//
// # Quick start
//
// Run the daemon and connect from any WebSocket client on the LAN:
//
//	deskpilotd serve --port 8080
//
//	const sock = new WebSocket("ws://192.168.1.20:8080/ws");
//	sock.send(JSON.stringify({command: "play_pause"}));
//
// # Wire protocol
//
// Text frames carrying UTF-8 JSON. Inbound:
//
//	{"id": "optional-correlation-id", "command": "volume_set", "data": {"value": 40}}
//
// Outbound:
//
//	{"id": "optional-correlation-id", "status": "success", "message": "Volume set to 40%", "data": null}
//
// The correlation id is echoed back verbatim; a frame that fails to parse
// yields an error response with a null id and the session keeps reading.
// Responses to a session's own commands are delivered in order; broadcasts
// may interleave with them arbitrarily.
//
// # Command dispatch
//
// Command names map to exactly one executor operation each
// (play_pause, media_previous, media_next, media_stop, volume_up,
// volume_down, volume_mute, volume_set, brightness_up, brightness_down,
// brightness_set, send_key, text_input, mouse_move, mouse_click, scroll,
// open_website). Payload fields are validated before the executor is
// invoked and every dispatch is bounded by a 30 second timeout. Native
// calls run on worker goroutines so a fault that would otherwise take the
// process down is downgraded to an error response.
//
// # Rate limiting
//
// Inbound frames are rate limited per client with a token bucket
// (default 100 messages/second, burst 200; close code 1008 on excess).
// Text input additionally enforces a minimum 100ms spacing between native
// calls and at most one in-flight operation process-wide; a second caller
// gets "System busy, please try again" instead of queueing.
//
// # Security
//
// The server speaks plain ws:// on the local network and performs no
// authentication; it is meant to sit behind the trust boundary of a home
// LAN. Configure the origin check in anything beyond that.
package deskpilot
