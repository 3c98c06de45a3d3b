package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	solutions  map[string]model.RoutingSolution
	solOrder   []string // insertion order for cursor pagination
	cameras    map[string]model.CameraRegistration
	camOrder   []string
	incidents  []storedIncident
	subs       []model.Subscription
	deliveries map[string]*memDelivery
	delOrder   []string
}

type storedIncident struct {
	sourceID string
	inc      model.Incident
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		solutions:  map[string]model.RoutingSolution{},
		cameras:    map[string]model.CameraRegistration{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) SaveSolution(ctx context.Context, sol model.RoutingSolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.solutions[sol.ID]; !ok {
		m.solOrder = append(m.solOrder, sol.ID)
	}
	m.solutions[sol.ID] = sol
	return nil
}

func (m *Memory) GetSolution(ctx context.Context, id string) (model.RoutingSolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sol, ok := m.solutions[id]
	if !ok {
		return model.RoutingSolution{}, ErrNotFound
	}
	return sol, nil
}

func (m *Memory) ListSolutions(ctx context.Context, cursor string, limit int) ([]model.RoutingSolution, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.solOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.RoutingSolution{}
	var next string
	for i := start; i < len(m.solOrder) && len(out) < limit; i++ {
		out = append(out, m.solutions[m.solOrder[i]])
		next = m.solOrder[i]
	}
	if start+len(out) >= len(m.solOrder) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) SaveCamera(ctx context.Context, cam model.CameraRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[cam.CameraID]; !ok {
		m.camOrder = append(m.camOrder, cam.CameraID)
	}
	m.cameras[cam.CameraID] = cam
	return nil
}

func (m *Memory) GetCamera(ctx context.Context, id string) (model.CameraRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cam, ok := m.cameras[id]
	if !ok {
		return model.CameraRegistration{}, ErrNotFound
	}
	return cam, nil
}

func (m *Memory) ListCameras(ctx context.Context) ([]model.CameraRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CameraRegistration, 0, len(m.camOrder))
	for _, id := range m.camOrder {
		out = append(out, m.cameras[id])
	}
	return out, nil
}

func (m *Memory) DeleteCamera(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[id]; !ok {
		return ErrNotFound
	}
	delete(m.cameras, id)
	out := make([]string, 0, len(m.camOrder))
	for _, v := range m.camOrder {
		if v != id {
			out = append(out, v)
		}
	}
	m.camOrder = out
	return nil
}

func (m *Memory) SaveIncident(ctx context.Context, sourceID string, inc model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	m.incidents = append(m.incidents, storedIncident{sourceID: sourceID, inc: inc})
	return nil
}

func (m *Memory) ListIncidents(ctx context.Context, since time.Time, limit int) ([]model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.Incident{}
	for _, si := range m.incidents {
		if !since.IsZero() && si.inc.Timestamp.Before(since) {
			continue
		}
		out = append(out, si.inc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i := range m.subs {
			if m.subs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	items := append([]model.Subscription(nil), m.subs[start:end]...)
	next := ""
	if end < len(m.subs) {
		next = m.subs[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	found := false
	for _, s := range m.subs {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return ErrNotFound
	}
	m.subs = out
	return nil
}

func (m *Memory) EnqueueDelivery(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{
		ID: id, SubscriptionID: subscriptionID, EventType: eventType,
		URL: url, Secret: secret, Payload: payload, Status: "pending",
	}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.delOrder = append(m.delOrder, id)
	return id, nil
}

func (m *Memory) FetchDueDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.delOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}
