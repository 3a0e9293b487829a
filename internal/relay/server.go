package relay

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// games are served from anywhere and signal through one relay
	CheckOrigin: func(r *http.Request) bool { return true },
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Routes configures the relay's HTTP endpoints
func Routes(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Connected: %d", hub.ParticipantCount())
	})
	r.Get("/ws", hub.serveWS)
	r.Get("/games", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.GamesList())
	})
	r.Get("/qr/{id}", hub.serveQR)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":       "ok",
			"connections":  hub.TotalConns(),
			"participants": hub.ParticipantCount(),
			"peers":        hub.analytics.ConcurrentPeers(),
		})
	})
	return r
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)
	if !h.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("upgrade error: %v", err)
		return
	}
	h.TrackConnect(ip)

	client := NewClient(h, conn, ip)
	if _, err := h.Connect(client); err != nil {
		h.log.Printf("%s: %v", ip, err)
	}

	go client.WritePump()
	go client.ReadPump()
}

// serveQR renders a QR code of the join link for a participant id. Private games
// are reachable by id too, so the registry is not consulted.
func (h *Hub) serveQR(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < minID || id >= maxID {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	png, err := qrcode.Encode(fmt.Sprintf("%s/?join=%d", h.cfg.PublicURL, id), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
