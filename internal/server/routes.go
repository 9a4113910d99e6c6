package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/C0neF/gomoku-project/internal/signaling"
)

// Options tunes the websocket endpoint.
type Options struct {
	// AllowedOrigins lists accepted Origin hosts. Empty or "*" accepts all.
	AllowedOrigins []string

	// SendQueue is the per-connection outbound buffer.
	SendQueue int
}

// NewRouter mounts the health, stats and websocket endpoints.
func NewRouter(hub *signaling.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /stats", statsHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub, opts))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func statsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
			slog.Warn("write stats", "error", err)
		}
	}
}

// ServeWs upgrades the request, assigns a participant ID and starts the pumps.
func ServeWs(hub *signaling.Hub, opts Options) http.HandlerFunc {
	queue := opts.SendQueue
	if queue <= 0 {
		queue = 256
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := signaling.NewClient(hub, conn, uuid.NewString(), queue)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(a, u.Host) || strings.EqualFold(a, origin)
		})
	}
}
