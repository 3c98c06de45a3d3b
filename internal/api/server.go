package api

import (
	"context"
	"os"
	"strings"
	"time"

	"fleetroute/internal/alerts"
	"fleetroute/internal/config"
	"fleetroute/internal/cost"
	"fleetroute/internal/engine"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
	"fleetroute/internal/trafficfeed"
	"fleetroute/internal/weather"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Engine *engine.Engine
	Feed   *trafficfeed.Processor
	Pub    *alerts.Publisher
	Broker EventBroker
}

// NewServer wires the whole pipeline. If DATABASE_URL is unset, uses the
// in-memory store; if REDIS_URL is unset, the in-process broker.
func NewServer(cfg config.Config, det trafficfeed.Detector) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.Migrate(context.Background())
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	feed := trafficfeed.NewProcessor(det, trafficfeed.Config{
		QueueSize:           cfg.FrameQueueSize,
		Workers:             cfg.FeedWorkers,
		CongestionThreshold: cfg.CongestionThreshold,
		DensityDivisor:      cfg.DensityDivisor,
		IncidentRetention:   time.Duration(cfg.IncidentRetention),
	})

	eng := engine.New(
		opt.NewSequencer(cfg.BruteForceMax, cfg.TwoOptIterations),
		cost.NewModel(cfg.BaseSpeedKph, cfg.IncidentCorridorKm),
	)
	eng.Traffic = feed
	eng.Store = s
	if cfg.WeatherURL != "" {
		eng.Weather = weather.NewHTTPProvider(cfg.WeatherURL, cfg.WeatherAPIKey)
	}

	srv := &Server{
		Cfg:    cfg,
		Store:  s,
		Engine: eng,
		Feed:   feed,
		Pub:    alerts.NewPublisher(s),
		Broker: broker,
	}
	feed.OnUpdate = srv.onTrafficUpdate
	feed.Start()
	return srv, nil
}

// onTrafficUpdate pushes every processed frame to stream subscribers and
// raises a congestion alert on the uncongested-to-congested transition.
func (s *Server) onTrafficUpdate(cameraID string, tc model.TrafficConditions, becameCongested bool) {
	evt := SSEEvent{Type: "traffic.update", Data: map[string]any{
		"camera_id":     cameraID,
		"vehicle_count": tc.VehicleCount,
		"density":       tc.Density,
		"is_congested":  tc.IsCongested,
		"last_updated":  tc.LastUpdated.UTC().Format(time.RFC3339),
	}}
	s.Broker.Publish(cameraID, evt)
	s.Broker.Publish(TopicAll, evt)
	if becameCongested {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Pub.Emit(ctx, alerts.EventCongestion, map[string]any{
			"camera_id":     cameraID,
			"vehicle_count": tc.VehicleCount,
			"density":       tc.Density,
		})
	}
}

// NewAlertWorker creates the background worker for alert deliveries.
func (s *Server) NewAlertWorker() *alerts.Worker {
	return alerts.NewWorker(s.Store)
}

func (s *Server) Close() {
	s.Feed.Close()
}
