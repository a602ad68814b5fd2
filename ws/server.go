package ws

import (
	"net/http"

	"github.com/deskpilot/deskpilot"
	"github.com/deskpilot/deskpilot/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type Handler = websocket.Handler
type ServerConfig = *websocket.ServerConfig

// New creates a command server from cfg. The server does not listen
// until Start is called.
//
// Example:
//
//	server := ws.New(ws.NewConfig(8080, handler, ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func New(cfg ServerConfig) deskpilot.Server {
	return websocket.New(cfg)
}

func NewConfig(port int, handler Handler, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Port:               port,
		Handler:            handler,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// AllOrigins returns a checkOrigin function that allows all origins.
// Phone clients connect from an app or a LAN web page, so the usual
// browser same-origin assumption does not hold here.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
