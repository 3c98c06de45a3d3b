package store

import (
	"context"
	"errors"
	"time"

	"fleetroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Routing solutions
	SaveSolution(ctx context.Context, sol model.RoutingSolution) error
	GetSolution(ctx context.Context, id string) (model.RoutingSolution, error)
	ListSolutions(ctx context.Context, cursor string, limit int) ([]model.RoutingSolution, string, error)

	// Camera registrations
	SaveCamera(ctx context.Context, cam model.CameraRegistration) error
	GetCamera(ctx context.Context, id string) (model.CameraRegistration, error)
	ListCameras(ctx context.Context) ([]model.CameraRegistration, error)
	DeleteCamera(ctx context.Context, id string) error

	// Incident history
	SaveIncident(ctx context.Context, sourceID string, inc model.Incident) error
	ListIncidents(ctx context.Context, since time.Time, limit int) ([]model.Incident, error)

	// Alert subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Alert deliveries
	EnqueueDelivery(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
