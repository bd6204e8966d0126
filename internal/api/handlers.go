package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/geometry"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/store"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email      string             `json:"email"`
	Credential string             `json:"credential"`
	Role       model.OperatorRole `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.InvalidTelemetry, "malformed request body"))
		return
	}
	if req.Email == "" || req.Credential == "" {
		writeError(w, apierr.New(apierr.InvalidTelemetry, "email and credential are required"))
		return
	}
	if req.Role == "" {
		req.Role = model.RoleAnalyst
	}

	verifier, err := auth.HashCredential(req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}

	op, err := s.store.CreateOperator(r.Context(), req.Email, verifier, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": op.ID, "email": op.Email, "role": op.Role})
}

type authenticateRequest struct {
	Email      string `json:"email"`
	Credential string `json:"credential"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.InvalidTelemetry, "malformed request body"))
		return
	}

	op, err := s.store.GetOperatorByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if !auth.VerifyCredential(op.CredentialVerifier, req.Credential) {
		writeError(w, apierr.New(apierr.Unauthenticated, "invalid credential"))
		return
	}

	token, err := s.issuer.Issue(op)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": token, "role": op.Role})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in model.TelemetryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apierr.New(apierr.InvalidTelemetry, "malformed request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.ingestDeadline)
	defer cancel()

	res, err := s.pipeline.Ingest(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res.Flight)
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)
	flights, err := s.store.ListRecentFlights(r.Context(), limit, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

type regionRequest struct {
	Name        string `json:"name"`
	PolygonJSON string `json:"polygon_json"`
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		regions, err := s.store.ListRegions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, regions)

	case http.MethodPost:
		claims := claimsFrom(r)
		if claims == nil || !auth.RequireRole(claims, model.RoleAdmin) {
			writeError(w, apierr.New(apierr.Unauthorized, "admin role required"))
			return
		}

		var req regionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierr.New(apierr.InvalidTelemetry, "malformed request body"))
			return
		}
		if _, err := geometry.Parse(req.PolygonJSON); err != nil {
			writeError(w, apierr.New(apierr.MalformedGeometry, err.Error()))
			return
		}

		region, err := s.store.UpsertRegion(r.Context(), req.Name, req.PolygonJSON)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.pipeline.RefreshRegions(r.Context()); err != nil {
			log.Printf("refresh regions after create: %v", err)
		}
		writeJSON(w, http.StatusCreated, region)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleActiveRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.store.GetActiveRegions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

func (s *Server) handleToggleRegion(w http.ResponseWriter, r *http.Request) {
	id, err := regionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.ToggleRegion(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.pipeline.RefreshRegions(r.Context()); err != nil {
		log.Printf("refresh regions after toggle: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	id, err := regionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteRegion(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.pipeline.RefreshRegions(r.Context()); err != nil {
		log.Printf("refresh regions after delete: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func regionIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierr.New(apierr.InvalidTelemetry, "id query parameter must be an integer")
	}
	return id, nil
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := store.AlertFilter{
		Limit:          parseLimit(r, 100),
		UnresolvedOnly: r.URL.Query().Get("unresolved") == "true",
	}
	alerts, err := s.store.ListRecentAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidTelemetry, "id query parameter must be an integer"))
		return
	}

	if err := s.store.ResolveAlert(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.bus.Subscribe()
	defer cancel()

	log.Printf("subscriber %s connected", sub.ID)

	for ev := range sub.Events {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("subscriber %s write failed: %v", sub.ID, err)
			return
		}
	}
}
