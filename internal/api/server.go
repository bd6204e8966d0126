// Package api exposes the Ingest & Query Surface over HTTP plus a
// websocket push channel, the same net/http.ServeMux + rs/cors +
// gorilla/websocket stack the teacher backend used for its own dashboard
// feed, generalized with JWT bearer auth and role gating.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/bus"
	"github.com/dreadnought-systems/airwatch/internal/ingest"
	"github.com/dreadnought-systems/airwatch/internal/metrics"
	"github.com/dreadnought-systems/airwatch/internal/store"
)

// Server wires the pipeline, store, bus, and auth issuer into routable
// HTTP handlers.
type Server struct {
	pipeline       *ingest.Pipeline
	store          *store.Store
	bus            *bus.Bus
	issuer         *auth.Issuer
	ingestDeadline time.Duration

	upgrader websocket.Upgrader
}

// New constructs a Server. Callers obtain the final http.Handler via
// Handler(), which wraps the mux in CORS. ingestDeadline bounds how long
// handleIngest lets the pipeline run before failing the request with
// DeadlineExceeded, per spec.md §5.
func New(pipeline *ingest.Pipeline, st *store.Store, b *bus.Bus, issuer *auth.Issuer, ingestDeadline time.Duration) *Server {
	return &Server{
		pipeline:       pipeline,
		store:          st,
		bus:            b,
		issuer:         issuer,
		ingestDeadline: ingestDeadline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the routed, CORS-wrapped, request-logged http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/operators/register", s.handleRegister)
	mux.HandleFunc("/api/operators/authenticate", s.handleAuthenticate)

	mux.HandleFunc("/api/telemetry", s.requireAuth(s.handleIngest))
	mux.HandleFunc("/api/tracks", s.requireAuth(s.handleListTracks))

	mux.HandleFunc("/api/regions", s.requireAuth(s.handleRegions))
	mux.HandleFunc("/api/regions/active", s.requireAuth(s.handleActiveRegions))
	mux.HandleFunc("/api/regions/toggle", s.requireAuth(s.requireAdmin(s.handleToggleRegion)))
	mux.HandleFunc("/api/regions/delete", s.requireAuth(s.requireAdmin(s.handleDeleteRegion)))

	mux.HandleFunc("/api/alerts", s.requireAuth(s.handleListAlerts))
	mux.HandleFunc("/api/alerts/resolve", s.requireAuth(s.handleResolveAlert))

	mux.HandleFunc("/ws", s.requireAuth(s.handleSubscribe))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*", "Authorization"},
		AllowCredentials: true,
	})

	return requestLogger(c.Handler(mux))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeError maps an apierr.Error (or any error) to a JSON response with
// the right status, per spec.md §7's fixed Kind -> status table.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.Status())
		json.NewEncoder(w).Encode(map[string]string{
			"error": string(apiErr.Kind),
			"message": apiErr.Message,
		})
		return
	}
	log.Printf("unhandled error: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
