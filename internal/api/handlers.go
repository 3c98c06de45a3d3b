package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetroute/internal/alerts"
	"fleetroute/internal/engine"
	"fleetroute/internal/geo"
	"fleetroute/internal/model"
	"fleetroute/internal/store"
	"fleetroute/internal/trafficfeed"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	sol, err := s.Engine.Optimize(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrMissingField):
			writeProblem(w, http.StatusBadRequest, "Missing required field", err.Error(), r.URL.Path)
		case errors.Is(err, geo.ErrInvalidCoordinate):
			writeProblem(w, http.StatusBadRequest, "Invalid coordinate", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusInternalServerError, "Optimize failed", err.Error(), r.URL.Path)
		}
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// SolutionsHandler handles GET /v1/solutions
func (s *Server) SolutionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListSolutions(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List solutions failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
}

// SolutionByIDHandler handles GET /v1/solutions/{id} and /v1/solutions/{id}/stats
func (s *Server) SolutionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solutions/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 {
		if parts[1] == "stats" {
			s.SolverStatsHandler(w, r, id)
			return
		}
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	sol, err := s.Store.GetSolution(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solution not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solution failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// CamerasHandler handles POST/GET /v1/cameras
func (s *Server) CamerasHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var reg model.CameraRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateCameraRegistration(&reg); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid camera registration", err.Error(), r.URL.Path)
			return
		}
		if err := s.Feed.Register(reg.CameraID, reg.Location); err != nil {
			if errors.Is(err, trafficfeed.ErrSourceExists) {
				writeProblem(w, http.StatusConflict, "Source already exists", reg.CameraID, r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Register camera failed", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveCamera(r.Context(), reg); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save camera failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"camera_id": reg.CameraID, "status": "registered"})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Feed.Status())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CameraByIDHandler handles /v1/cameras/{id} plus the /stream and /feed
// sub-resources.
func (s *Server) CameraByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cameras/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	// /v1/cameras/status is the fleet-wide status map, not a camera id.
	if id == "status" && len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.Feed.Status())
		return
	}

	if len(parts) > 1 && parts[1] == "stream" {
		s.cameraStream(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "feed" {
		s.FrameIngestHandler(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tc, err := s.Feed.Snapshot(id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Source not found", id, r.URL.Path)
			return
		}
		status := s.Feed.Status()[id]
		status.TrafficConditions = tc
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := s.Feed.Deregister(id); err != nil {
			writeProblem(w, http.StatusNotFound, "Source not found", id, r.URL.Path)
			return
		}
		if err := s.Store.DeleteCamera(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusInternalServerError, "Delete camera failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"camera_id": id, "status": "deregistered"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// cameraStream serves SSE traffic updates for one camera.
func (s *Server) cameraStream(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Feed.Snapshot(id); err != nil {
		writeProblem(w, http.StatusNotFound, "Source not found", id, r.URL.Path)
		return
	}
	s.streamEvents(w, r, id)
}

// TrafficStreamHandler handles GET /v1/traffic/stream: SSE updates from every
// camera, same event shape as the per-camera stream.
func (s *Server) TrafficStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.streamEvents(w, r, TopicAll)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// TrafficHandler handles GET /v1/traffic: the full per-source snapshot plus
// the aggregate fed into route costing.
func (s *Server) TrafficHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	density, incidents := s.Feed.Aggregate()
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": s.Feed.SnapshotAll(),
		"aggregate": map[string]any{
			"density":   density,
			"incidents": incidents,
		},
	})
}

// IncidentsHandler handles POST/GET /v1/incidents
func (s *Server) IncidentsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			CameraID string `json:"camera_id"`
			model.Incident
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.CameraID == "" || req.Type == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid incident", "camera_id and type are required", r.URL.Path)
			return
		}
		if req.Timestamp.IsZero() {
			req.Timestamp = time.Now().UTC()
		}
		if err := s.Feed.ReportIncident(req.CameraID, req.Incident); err != nil {
			writeProblem(w, http.StatusNotFound, "Source not found", req.CameraID, r.URL.Path)
			return
		}
		if err := s.Store.SaveIncident(r.Context(), req.CameraID, req.Incident); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save incident failed", err.Error(), r.URL.Path)
			return
		}
		s.Pub.Emit(r.Context(), alerts.EventIncident, map[string]any{
			"camera_id": req.CameraID,
			"type":      req.Type,
			"severity":  req.Severity,
		})
		evt := SSEEvent{Type: alerts.EventIncident, Data: map[string]any{
			"camera_id": req.CameraID, "type": req.Type, "severity": req.Severity,
		}}
		s.Broker.Publish(req.CameraID, evt)
		s.Broker.Publish(TopicAll, evt)
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "reported"})
	case http.MethodGet:
		since := time.Now().Add(-time.Duration(s.Cfg.IncidentRetention))
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid since", err.Error(), r.URL.Path)
				return
			}
			since = t
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListIncidents(r.Context(), since, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List incidents failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SolverStatsHandler handles GET /v1/solutions/{id}/stats
func (s *Server) SolverStatsHandler(w http.ResponseWriter, r *http.Request, id string) {
	st, ok := s.Engine.Stats.Get(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Stats not found", id, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles":      st.Vehicles,
		"stops":         st.Stops,
		"unassigned":    st.Unassigned,
		"brute_forced":  st.BruteForced,
		"heuristic":     st.Heuristic,
		"total_tour_km": st.TotalTourKm,
		"elapsed_ms":    st.ElapsedMs,
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
