package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/version"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,

	// Players dial in from terminals, not browsers, so there is no origin
	// worth checking.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter wires the relay's HTTP surface under cfg.Prefix.
func NewRouter(cfg *config.Server, hub *Hub) *httprouter.Router {
	prefix := strings.TrimSuffix(cfg.Prefix, "/")

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		slog.Error("handler panic", "path", r.URL.Path, "panic", v)
		securityHeaders(cfg, w)
		http.Error(w, "server error", http.StatusInternalServerError)
	}

	mux.GET(prefix+"/ws", serveWs(hub))
	mux.GET(prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(prefix+"/version", serveVersion(cfg))
	mux.GET(prefix+"/r/:room", serveRoom(cfg))
	mux.GET(prefix+"/r/:room/qr", serveRoomQR(cfg))

	if cfg.Profile {
		registerProfileHandlers(prefix, mux)
	}

	return mux
}

func securityHeaders(cfg *config.Server, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.Scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	return host
}

// serveWs upgrades the connection and hands it to the hub.
func serveWs(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", realIP(r), "err", err)
			return
		}

		client := newClient(hub, conn)
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func serveHealthCheck(cfg *config.Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ok\n"))
	}
}

func serveVersion(cfg *config.Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "snake v%s\n", version.Version)

		slog.Debug("served version", "remote", realIP(r), "took", time.Since(startTime).Round(time.Microsecond))
	}
}

// serveRoom answers a shared lobby link with the command that joins it.
func serveRoom(cfg *config.Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "snake play --domain %s --room %s\n", publicHost(cfg, r), ps.ByName("room"))
	}
}

// serveRoomQR renders a PNG QR code pointing at the lobby link.
func serveRoomQR(cfg *config.Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := ps.ByName("room")
		if room == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		scheme := cfg.Scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		link := scheme + "://" + publicHost(cfg, r) + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		securityHeaders(cfg, w)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func publicHost(cfg *config.Server, r *http.Request) string {
	if cfg.Domain != "" {
		return cfg.Domain
	}
	return r.Host
}

func registerProfileHandlers(prefix string, mux *httprouter.Router) {
	mux.Handler("GET", prefix+"/pprof/allocs", pprof.Handler("allocs"))
	mux.Handler("GET", prefix+"/pprof/block", pprof.Handler("block"))
	mux.Handler("GET", prefix+"/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handler("GET", prefix+"/pprof/heap", pprof.Handler("heap"))
	mux.Handler("GET", prefix+"/pprof/mutex", pprof.Handler("mutex"))
	mux.HandlerFunc("GET", prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", prefix+"/pprof/trace", pprof.Trace)
}
