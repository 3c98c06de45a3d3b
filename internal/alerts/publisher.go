package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetroute/internal/store"
)

// Event types emitted by the traffic pipeline.
const (
	EventCongestion = "traffic.congested"
	EventIncident   = "incident.reported"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit fans an event out to every subscription registered for the event type.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueDelivery(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
