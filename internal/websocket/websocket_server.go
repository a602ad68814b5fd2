// Package websocket hosts the command server: it upgrades HTTP requests,
// runs one read loop per client, and hands decoded commands to the
// dispatch handler. Responses and broadcasts share each client's single
// outbound queue so only the write pump ever touches the connection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot"
	"github.com/deskpilot/deskpilot/internal/hostinfo"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/internal/protocol"
	"github.com/deskpilot/deskpilot/internal/registry"
)

// Handler executes one decoded command and produces its response
// envelope. Implementations must be safe for concurrent use across
// clients.
type Handler interface {
	Handle(ctx context.Context, cmd protocol.Command) protocol.Response
}

// CheckOriginFn validates the origin of a WebSocket connection request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the handshake completes and before the
// message reading loop starts. It runs synchronously during connection
// setup; avoid long-running work here.
type OnConnectFn = func(client deskpilot.Client)

// OnClientDisconnectFn is invoked when a connected client disconnects.
// voluntary is true when the client ended the session with a close
// frame; transport failures and server-initiated closes report false.
type OnClientDisconnectFn = func(client deskpilot.Client, voluntary bool)

type ServerConfig struct {
	Port               int
	Handler            Handler
	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn
	Logger             zerolog.Logger
	Metrics            *metrics.Metrics
}

// RateLimitConfig defines per-client inbound rate limiting.
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig allows 100 messages per second with burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server accepts WebSocket clients and routes their commands through the
// handler. It implements deskpilot.Server.
type Server struct {
	handler         Handler
	registry        *registry.Registry
	rateLimitConfig *RateLimitConfig

	mu         sync.RWMutex
	port       int
	listener   net.Listener
	httpServer *http.Server
	running    bool

	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
	log          zerolog.Logger
	metrics      *metrics.Metrics
}

var _ deskpilot.Server = (*Server)(nil)

// New creates a server from cfg. The server does not listen until Start
// is called. If cfg.RateLimitConfig is nil, DefaultRateLimitConfig() is
// used; a nil CheckOrigin keeps gorilla's same-origin default.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	return &Server{
		handler:         cfg.Handler,
		registry:        registry.New(),
		rateLimitConfig: cfg.RateLimitConfig,
		port:            cfg.Port,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnClientDisconnect,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// SetPort changes the listen port for the next Start. It fails while
// the server is running.
func (s *Server) SetPort(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New(deskpilot.MsgServerAlreadyRunning)
	}
	s.port = port
	return nil
}

// Start begins accepting connections. Calling Start on a running server
// is a no-op. The listener is bound synchronously so Status reports the
// actual port, including when port 0 asked the kernel to pick one.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info().Msg(deskpilot.MsgServerAlreadyRunning)
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.mu.Unlock()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	s.running = true
	port := listener.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Info().Int("port", port).Msg("WebSocket server listening")
		return nil
	}
}

// Stop closes the listener. Established sessions keep running until
// their connections end; Shutdown does not touch hijacked connections,
// which is what WebSocket upgrades are.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// Status reports whether the server is accepting connections, the bound
// port, the connected client count, and the host's LAN address.
func (s *Server) Status() deskpilot.Status {
	s.mu.RLock()
	running := s.running
	port := s.port
	if running && s.listener != nil {
		port = s.listener.Addr().(*net.TCPAddr).Port
	}
	s.mu.RUnlock()

	return deskpilot.Status{
		Running:     running,
		Port:        port,
		ClientCount: s.registry.Count(),
		LocalIP:     hostinfo.LocalIP(),
	}
}

// Broadcast queues message on every connected client. Clients whose
// outbound queue is full are skipped rather than blocked on.
func (s *Server) Broadcast(ctx context.Context, message string) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return errors.New(deskpilot.MsgServerNotRunning)
	}

	delivered := s.registry.Broadcast([]byte(message))
	s.metrics.BroadcastSent()
	s.log.Debug().Int("delivered", delivered).Msg("broadcast queued")
	return nil
}

// handleWebSocket upgrades the request and starts the client session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig, s.log, s.metrics.WriteError)
	s.registry.Register(client.ID(), client.SendChannel())
	s.metrics.ClientConnected()
	s.log.Info().Str("client_id", client.ID()).Str("remote_addr", client.RemoteAddr()).Msg("client connected")

	go s.handleClient(client)
}

// handleClient owns the read side of one session. Commands run
// sequentially per connection, so responses leave in arrival order;
// concurrency exists only across clients.
func (s *Server) handleClient(client *Client) {
	// voluntary means the peer sent a proper close frame; transport
	// failures and server-initiated closes report false.
	voluntary := false
	defer func() {
		if s.onDisconnect != nil {
			s.onDisconnect(client, voluntary)
		}
		s.registry.Unregister(client.ID())
		s.metrics.ClientDisconnected()
		client.Close(context.Background())
		s.log.Info().Str("client_id", client.ID()).Msg("client disconnected")
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(client)
	}

	for {
		select {
		case <-client.Context().Done():
			return
		default:
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				voluntary = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					s.metrics.ReadError()
					s.log.Warn().Err(err).Str("client_id", client.ID()).Msg("unexpected close")
				}
				return
			}

			client.conn.SetReadDeadline(time.Now().Add(pongWait))

			if !client.CheckRateLimit() {
				s.log.Warn().Str("client_id", client.ID()).Str("remote_addr", client.RemoteAddr()).Msg("rate limit exceeded")
				client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, "Rate limit exceeded")
				return
			}

			s.handleFrame(client, data)
		}
	}
}

// handleFrame decodes one inbound frame and queues exactly one response.
// Malformed frames produce an error envelope but keep the session open.
func (s *Server) handleFrame(client *Client, data []byte) {
	var resp protocol.Response
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", client.ID()).Msg("failed to parse command")
		resp = protocol.Error(nil, fmt.Sprintf("%s: %v", deskpilot.MsgInvalidCommandFormat, err))
	} else {
		resp = s.handler.Handle(client.Context(), cmd)
	}

	if err := client.Send(client.Context(), protocol.EncodeResponse(resp)); err != nil {
		s.log.Warn().Err(err).Str("client_id", client.ID()).Msg("failed to queue response")
	}
}
