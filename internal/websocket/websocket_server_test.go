package websocket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/deskpilot/deskpilot"
	"github.com/deskpilot/deskpilot/internal/protocol"
	"github.com/deskpilot/deskpilot/internal/websocket"
)

// echoHandler answers every command with a success naming the command.
type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	return protocol.Success(cmd.ID, "handled "+cmd.Name)
}

func startServer(t *testing.T) *websocket.Server {
	t.Helper()

	srv := websocket.New(&websocket.ServerConfig{
		Port:            0,
		Handler:         echoHandler{},
		RateLimitConfig: websocket.NoRateLimit(),
		CheckOrigin:     func(r *http.Request) bool { return true },
		Logger:          zerolog.Nop(),
	})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *websocket.Server) *gorilla.Conn {
	t.Helper()

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", srv.Status().Port)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *gorilla.Conn) protocol.Response {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return resp
}

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	conn := dial(t, srv)

	if err := conn.WriteMessage(gorilla.TextMessage, []byte(`{"id":"req-1","command":"play_pause"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	resp := readResponse(t, conn)
	if resp.ID == nil || *resp.ID != "req-1" {
		t.Errorf("ID = %v, want req-1", resp.ID)
	}
	if resp.Status != protocol.StatusSuccess || resp.Message != "handled play_pause" {
		t.Errorf("got %q/%q", resp.Status, resp.Message)
	}
}

func TestMalformedFrameKeepsSessionOpen(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	conn := dial(t, srv)

	if err := conn.WriteMessage(gorilla.TextMessage, []byte(`this is not json`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	resp := readResponse(t, conn)
	if resp.Status != protocol.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
	if resp.ID != nil {
		t.Errorf("ID = %q, want null", *resp.ID)
	}

	// The session must survive the bad frame.
	if err := conn.WriteMessage(gorilla.TextMessage, []byte(`{"command":"volume_up"}`)); err != nil {
		t.Fatalf("WriteMessage() after bad frame error = %v", err)
	}
	resp = readResponse(t, conn)
	if resp.Status != protocol.StatusSuccess || resp.Message != "handled volume_up" {
		t.Errorf("got %q/%q after bad frame", resp.Status, resp.Message)
	}
}

func TestResponsesArriveInOrder(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	conn := dial(t, srv)

	for i := 0; i < 5; i++ {
		frame := fmt.Sprintf(`{"id":"req-%d","command":"volume_up"}`, i)
		if err := conn.WriteMessage(gorilla.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage(%d) error = %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		resp := readResponse(t, conn)
		want := fmt.Sprintf("req-%d", i)
		if resp.ID == nil || *resp.ID != want {
			t.Fatalf("response %d: ID = %v, want %s", i, resp.ID, want)
		}
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	connA := dial(t, srv)
	connB := dial(t, srv)

	// Both registrations must be visible before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Status().ClientCount < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want 2", srv.Status().ClientCount)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := srv.Broadcast(context.Background(), "host says hi"); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	for name, conn := range map[string]*gorilla.Conn{"A": connA, "B": connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %s ReadMessage() error = %v", name, err)
		}
		if string(data) != "host says hi" {
			t.Errorf("client %s received %q", name, data)
		}
	}
}

func TestResponseGoesOnlyToSender(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	connA := dial(t, srv)
	connB := dial(t, srv)

	if err := connA.WriteMessage(gorilla.TextMessage, []byte(`{"command":"play_pause"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	resp := readResponse(t, connA)
	if resp.Message != "handled play_pause" {
		t.Errorf("sender got %q", resp.Message)
	}

	connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Error("bystander received a frame for another client's command")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !srv.Status().Running {
		t.Error("Running = false after double Start")
	}
}

func TestStopAndBroadcastErrors(t *testing.T) {
	t.Parallel()

	srv := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if srv.Status().Running {
		t.Error("Running = true after Stop")
	}
	if err := srv.Broadcast(context.Background(), "anyone there"); err == nil {
		t.Error("Broadcast() error = nil on stopped server")
	}
}

func TestRateLimitClosesConnection(t *testing.T) {
	t.Parallel()

	srv := websocket.New(&websocket.ServerConfig{
		Port:    0,
		Handler: echoHandler{},
		RateLimitConfig: &websocket.RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 1,
			Burst:             2,
		},
		CheckOrigin: func(r *http.Request) bool { return true },
		Logger:      zerolog.Nop(),
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn := dial(t, srv)
	for i := 0; i < 20; i++ {
		if err := conn.WriteMessage(gorilla.TextMessage, []byte(`{"command":"volume_up"}`)); err != nil {
			break
		}
	}

	// Drain until the server closes the connection with a policy violation.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !gorilla.IsCloseError(err, gorilla.ClosePolicyViolation) {
			t.Fatalf("connection ended with %v, want close code %d", err, gorilla.ClosePolicyViolation)
		}
		return
	}
}

func TestDisconnectReportsVoluntary(t *testing.T) {
	t.Parallel()

	results := make(chan bool, 2)
	srv := websocket.New(&websocket.ServerConfig{
		Port:            0,
		Handler:         echoHandler{},
		RateLimitConfig: websocket.NoRateLimit(),
		CheckOrigin:     func(r *http.Request) bool { return true },
		OnClientDisconnect: func(client deskpilot.Client, voluntary bool) {
			results <- voluntary
		},
		Logger: zerolog.Nop(),
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	waitResult := func(label string) bool {
		t.Helper()
		select {
		case v := <-results:
			return v
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: disconnect callback never fired", label)
			return false
		}
	}

	// A proper close frame counts as a voluntary disconnect.
	polite := dial(t, srv)
	deadline := time.Now().Add(time.Second)
	if err := polite.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}
	if !waitResult("close frame") {
		t.Error("voluntary = false for a client close frame")
	}

	// A dropped transport does not.
	abrupt := dial(t, srv)
	abrupt.UnderlyingConn().Close()
	if waitResult("dropped transport") {
		t.Error("voluntary = true for a dropped transport")
	}
}
