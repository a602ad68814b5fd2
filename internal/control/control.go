// Package control exposes the local management API the desktop UI
// talks to: server lifecycle, connection info, broadcasts, modifier key
// state, and Prometheus metrics. It binds to loopback; the WebSocket
// command server is the only surface meant for the LAN.
package control

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/deskpilot/deskpilot"
	"github.com/deskpilot/deskpilot/internal/executor"
	"github.com/deskpilot/deskpilot/internal/protocol"
)

// Modifiers is the slice of the executor the control API needs.
type Modifiers interface {
	ToggleModifier(name string) (executor.Result, error)
	ClearModifiers() (executor.Result, error)
	ModifierStates() map[string]bool
}

type API struct {
	server deskpilot.Server
	mods   Modifiers
	log    zerolog.Logger
}

func New(server deskpilot.Server, mods Modifiers, log zerolog.Logger) *API {
	return &API{server: server, mods: mods, log: log}
}

// Router builds the chi router for the management API.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/connection-info", a.handleConnectionInfo)
		r.Post("/server/start", a.handleStart)
		r.Post("/server/stop", a.handleStop)
		r.Post("/broadcast", a.handleBroadcast)
		r.Get("/modifiers", a.handleModifierStates)
		r.Post("/modifiers/{key}/toggle", a.handleModifierToggle)
		r.Post("/modifiers/clear", a.handleModifierClear)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn().Err(err).Msg("failed to write response")
	}
}

func (a *API) writeEnvelope(w http.ResponseWriter, code int, resp protocol.Response) {
	a.writeJSON(w, code, resp)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.server.Status())
}

// handleConnectionInfo reports the addresses a phone needs to pair,
// suited for rendering as a QR code.
func (a *API) handleConnectionInfo(w http.ResponseWriter, r *http.Request) {
	st := a.server.Status()
	a.writeJSON(w, http.StatusOK, map[string]any{
		"local_ip":       st.LocalIP,
		"websocket_port": st.Port,
		"websocket_url":  fmt.Sprintf("ws://%s:%d/ws", st.LocalIP, st.Port),
	})
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	if a.server.Status().Running {
		a.writeEnvelope(w, http.StatusOK, protocol.Info(nil, deskpilot.MsgServerAlreadyRunning))
		return
	}

	var body struct {
		Port *int `json:"port"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.writeEnvelope(w, http.StatusBadRequest, protocol.Error(nil, "Invalid request body"))
			return
		}
	}

	if body.Port != nil {
		if ps, ok := a.server.(interface{ SetPort(int) error }); ok {
			if err := ps.SetPort(*body.Port); err != nil {
				a.writeEnvelope(w, http.StatusConflict, protocol.Error(nil, err.Error()))
				return
			}
		}
	}

	if err := a.server.Start(r.Context()); err != nil {
		a.writeEnvelope(w, http.StatusInternalServerError, protocol.Error(nil, err.Error()))
		return
	}

	port := a.server.Status().Port
	a.writeEnvelope(w, http.StatusOK, protocol.Success(nil,
		fmt.Sprintf("WebSocket server started on port %d", port)))
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	if !a.server.Status().Running {
		a.writeEnvelope(w, http.StatusOK, protocol.Info(nil, deskpilot.MsgServerNotRunning))
		return
	}

	if err := a.server.Stop(r.Context()); err != nil {
		a.writeEnvelope(w, http.StatusInternalServerError, protocol.Error(nil, err.Error()))
		return
	}
	a.writeEnvelope(w, http.StatusOK, protocol.Success(nil, "WebSocket server stopped"))
}

func (a *API) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeEnvelope(w, http.StatusBadRequest, protocol.Error(nil, "Invalid request body"))
		return
	}

	if err := a.server.Broadcast(r.Context(), body.Message); err != nil {
		a.writeEnvelope(w, http.StatusConflict, protocol.Error(nil, err.Error()))
		return
	}
	a.writeEnvelope(w, http.StatusOK, protocol.Success(nil, "Message broadcasted to all clients"))
}

func (a *API) handleModifierStates(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.mods.ModifierStates())
}

func (a *API) handleModifierToggle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	res, err := a.mods.ToggleModifier(key)
	if err != nil {
		a.writeEnvelope(w, http.StatusBadRequest, protocol.Error(nil, err.Error()))
		return
	}
	a.writeEnvelope(w, http.StatusOK, protocol.Success(nil, res.Message))
}

func (a *API) handleModifierClear(w http.ResponseWriter, r *http.Request) {
	res, err := a.mods.ClearModifiers()
	if err != nil {
		a.writeEnvelope(w, http.StatusInternalServerError, protocol.Error(nil, err.Error()))
		return
	}
	a.writeEnvelope(w, http.StatusOK, protocol.Success(nil, res.Message))
}
