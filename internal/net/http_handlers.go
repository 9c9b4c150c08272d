package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"time"

	server "lorule-online/server"
	"lorule-online/server/internal/auth"
	"lorule-online/server/internal/net/ws"
	"lorule-online/server/logging"
)

type HTTPHandlerConfig struct {
	Logger *log.Logger
	// RouterStats exposes logging router counters on /diagnostics; nil
	// omits them.
	RouterStats func() logging.RouterStats
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler assembles the server's HTTP surface: health, diagnostics,
// the account endpoints, and the websocket upgrade route.
func NewHTTPHandler(hub *server.Hub, accounts *auth.Service, wsHandler *ws.Handler, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Sessions   any    `json:"sessions"`
			Heartbeat  int64  `json:"heartbeatMillis"`
			Events     any    `json:"events,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Sessions:   hub.DiagnosticsSnapshot(),
			Heartbeat:  server.HeartbeatInterval().Milliseconds(),
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Events = struct {
				Total   uint64 `json:"total"`
				Dropped uint64 `json:"dropped"`
			}{Total: stats.EventsTotal, Dropped: stats.DroppedTotal}
		}

		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/auth/register", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, errorResponse{Error: "malformed request"})
			return
		}

		identity, err := accounts.Register(req.Name, req.Password)
		switch {
		case errors.Is(err, auth.ErrNameTaken):
			writeJSON(w, nethttp.StatusConflict, errorResponse{Error: "name already taken"})
			return
		case errors.Is(err, auth.ErrInvalidName), errors.Is(err, auth.ErrInvalidPassword):
			writeJSON(w, nethttp.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		case err != nil:
			logger.Printf("register failed: %v", err)
			httpError(w, "registration failed", nethttp.StatusInternalServerError)
			return
		}

		writeJSON(w, nethttp.StatusCreated, registerResponse{ID: identity.ID, Name: identity.Name})
	})

	mux.HandleFunc("/auth/login", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, errorResponse{Error: "malformed request"})
			return
		}

		token, err := accounts.Login(req.Name, req.Password)
		if err != nil {
			// One response for every failure class.
			writeJSON(w, nethttp.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		writeJSON(w, nethttp.StatusOK, loginResponse{Token: token})
	})

	mux.HandleFunc("/ws", wsHandler.Handle)

	return mux
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
