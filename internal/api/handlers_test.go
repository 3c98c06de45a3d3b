package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetroute/internal/config"
	"fleetroute/internal/model"
	"fleetroute/internal/trafficfeed"
)

// stubDetector yields a fixed vehicle count per frame.
type stubDetector struct{ vehicles int }

func (d stubDetector) Detect(_ context.Context, _ trafficfeed.Frame) ([]model.Detection, error) {
	out := make([]model.Detection, d.vehicles)
	for i := range out {
		out[i] = model.Detection{Class: "car", Confidence: 0.9}
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	s, err := NewServer(cfg, stubDetector{vehicles: 12})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOptimizeEndToEnd(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{
		"vehicles":[{"id":"T1","type":"truck","capacity_kg":10000}],
		"stops":[{"lat":12.9716,"lng":77.5946},{"lat":12.9352,"lng":77.6245}],
		"depot":{"lat":12.9698,"lng":77.7500},
		"max_stops_per_vehicle":5,
		"persist":true
	}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.OptimizeHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("optimize: %d: %s", rr.Code, rr.Body.String())
	}
	var sol model.RoutingSolution
	if err := json.Unmarshal(rr.Body.Bytes(), &sol); err != nil {
		t.Fatal(err)
	}
	if sol.Status != model.StatusOK || len(sol.Routes) != 1 || len(sol.Routes[0].Legs) != 3 {
		t.Fatalf("solution: %+v", sol)
	}

	// Persisted solution is retrievable.
	rr = httptest.NewRecorder()
	s.SolutionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solutions/"+sol.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get solution: %d", rr.Code)
	}

	// Solver stats are exposed alongside.
	rr = httptest.NewRecorder()
	s.SolutionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solutions/"+sol.ID+"/stats", nil))
	if rr.Code != 200 {
		t.Fatalf("get stats: %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOptimizeValidationErrors(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader([]byte(`{not json`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rr.Code)
	}

	// Missing depot.
	body := []byte(`{"vehicles":[{"id":"v1","capacity_kg":100}],"stops":[{"lat":1,"lng":2}]}`)
	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing depot: %d", rr.Code)
	}

	// Out-of-range coordinate.
	body = []byte(`{"vehicles":[{"id":"v1","capacity_kg":100}],"stops":[{"lat":95,"lng":2}],"depot":{"lat":1,"lng":2}}`)
	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad coordinate: %d", rr.Code)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != "Invalid coordinate" {
		t.Fatalf("problem title: %q", p.Title)
	}

	// Capacity overflow is not an error.
	body = []byte(`{
		"vehicles":[{"id":"T1","type":"truck","capacity_kg":10000}],
		"stops":[{"lat":12.97,"lng":77.59,"demand_kg":6000},{"lat":12.93,"lng":77.62,"demand_kg":6000}],
		"depot":{"lat":12.9698,"lng":77.7500}
	}`)
	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("overflow should degrade, got %d: %s", rr.Code, rr.Body.String())
	}
	var sol model.RoutingSolution
	if err := json.Unmarshal(rr.Body.Bytes(), &sol); err != nil {
		t.Fatal(err)
	}
	if sol.Status != model.StatusPartial || len(sol.UnassignedStops) == 0 {
		t.Fatalf("solution: status=%s unassigned=%d", sol.Status, len(sol.UnassignedStops))
	}
}

func registerCamera(t *testing.T, s *Server, id string) {
	t.Helper()
	body, _ := json.Marshal(model.CameraRegistration{CameraID: id, Location: model.GeoPoint{Lat: 12.97, Lng: 77.59}})
	rr := httptest.NewRecorder()
	s.CamerasHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/cameras", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("register camera: %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCameraLifecycle(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	// Duplicate registration conflicts.
	body, _ := json.Marshal(model.CameraRegistration{CameraID: "cam1"})
	rr := httptest.NewRecorder()
	s.CamerasHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/cameras", bytes.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rr.Code)
	}

	// Status listing includes the camera.
	rr = httptest.NewRecorder()
	s.CamerasHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/cameras", nil))
	if rr.Code != 200 {
		t.Fatalf("list cameras: %d", rr.Code)
	}
	var statuses map[string]model.CameraStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatal(err)
	}
	if _, ok := statuses["cam1"]; !ok {
		t.Fatalf("cam1 missing from %+v", statuses)
	}

	// Deregister, then a second delete 404s.
	rr = httptest.NewRecorder()
	s.CameraByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/cameras/cam1", nil))
	if rr.Code != 200 {
		t.Fatalf("deregister: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.CameraByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/cameras/cam1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double deregister: %d", rr.Code)
	}
}

func TestCameraStatusAlias(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	rr := httptest.NewRecorder()
	s.CameraByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/cameras/status", nil))
	if rr.Code != 200 {
		t.Fatalf("status alias: %d", rr.Code)
	}
	var statuses map[string]model.CameraStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatal(err)
	}
	if _, ok := statuses["cam1"]; !ok {
		t.Fatalf("cam1 missing from %+v", statuses)
	}
}

func TestTrafficStreamDeliversUpdates(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	ctx, cancel := context.WithCancel(context.Background())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/traffic/stream", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.TrafficStreamHandler(rr, req)
	}()

	// Give the handler time to subscribe, then drive an update through.
	time.Sleep(20 * time.Millisecond)
	s.Broker.Publish(TopicAll, SSEEvent{Type: "traffic.update", Data: map[string]any{"camera_id": "cam1"}})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	out := rr.Body.String()
	if !bytes.Contains([]byte(out), []byte("event: heartbeat")) {
		t.Fatalf("missing heartbeat: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("event: traffic.update")) {
		t.Fatalf("missing traffic.update: %q", out)
	}
}

func TestTrafficUpdatesAfterFrames(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	if err := s.Feed.Push("cam1", trafficfeed.Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		tc, err := s.Feed.Snapshot("cam1")
		if err != nil {
			t.Fatal(err)
		}
		if tc.VehicleCount == 12 {
			if !tc.IsCongested || tc.Density != 0.24 {
				t.Fatalf("conditions: %+v", tc)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame never processed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := httptest.NewRecorder()
	s.TrafficHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/traffic", nil))
	if rr.Code != 200 {
		t.Fatalf("traffic: %d", rr.Code)
	}
	var resp struct {
		Aggregate struct {
			Density float64 `json:"density"`
		} `json:"aggregate"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Aggregate.Density != 0.24 {
		t.Fatalf("aggregate density = %v", resp.Aggregate.Density)
	}
}

func TestIncidentReportAndList(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	body := []byte(`{"camera_id":"cam1","type":"accident","severity":"high","location":{"lat":12.97,"lng":77.59}}`)
	rr := httptest.NewRecorder()
	s.IncidentsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/incidents", bytes.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("report incident: %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.IncidentsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/incidents", nil))
	if rr.Code != 200 {
		t.Fatalf("list incidents: %d", rr.Code)
	}
	var resp struct {
		Items []model.Incident `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Type != "accident" {
		t.Fatalf("items: %+v", resp.Items)
	}

	// Unknown camera rejects the report.
	rr = httptest.NewRecorder()
	s.IncidentsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/incidents", bytes.NewReader([]byte(`{"camera_id":"nope","type":"hazard"}`))))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown camera: %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"http://hook.example/x","events":["traffic.congested"],"secret":"s1"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}
	var sub model.Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subs: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete sub: %d", rr.Code)
	}

	// Missing event list rejected.
	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":"http://x"}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid sub: %d", rr.Code)
	}
}

func TestCongestionEnqueuesAlert(t *testing.T) {
	s := newTestServer(t)
	registerCamera(t, s, "cam1")

	body := []byte(`{"url":"http://hook.example/x","events":["traffic.congested"],"secret":"s1"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}

	if err := s.Feed.Push("cam1", trafficfeed.Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		due, err := s.Store.FetchDueDeliveries(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(due) == 1 {
			if due[0].EventType != "traffic.congested" {
				t.Fatalf("event type: %s", due[0].EventType)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("congestion alert never enqueued")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
