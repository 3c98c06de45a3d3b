package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/cost"
	"fleetroute/internal/geo"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
	"fleetroute/internal/weather"
)

// Input-validation errors, surfaced to the caller before any computation.
var (
	ErrMissingField = errors.New("missing required field")
)

const defaultMaxStopsPerVehicle = 5

// TrafficSource supplies the live traffic snapshot used to weight legs.
// Satisfied by *trafficfeed.Processor.
type TrafficSource interface {
	Aggregate() (density float64, incidents []model.Incident)
}

// Engine orchestrates partitioning, sequencing, and leg costing into a
// RoutingSolution. All collaborators are injected; Traffic, Weather, and
// Store may be nil.
type Engine struct {
	Sequencer *opt.Sequencer
	Cost      *cost.Model
	Traffic   TrafficSource
	Weather   weather.Provider
	Store     store.Store
	Stats     *opt.StatsStore
}

func New(seq *opt.Sequencer, costModel *cost.Model) *Engine {
	return &Engine{
		Sequencer: seq,
		Cost:      costModel,
		Stats:     opt.NewStatsStore(),
	}
}

func validate(req model.OptimizeRequest) error {
	if len(req.Vehicles) == 0 {
		return fmt.Errorf("%w: vehicles", ErrMissingField)
	}
	if len(req.Stops) == 0 {
		return fmt.Errorf("%w: stops", ErrMissingField)
	}
	if req.Depot == nil {
		return fmt.Errorf("%w: depot", ErrMissingField)
	}
	if err := geo.Validate(*req.Depot); err != nil {
		return fmt.Errorf("depot: %w", err)
	}
	for i, s := range req.Stops {
		if err := geo.Validate(s.Point()); err != nil {
			return fmt.Errorf("stop %d: %w", i, err)
		}
	}
	for i, v := range req.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("%w: vehicle %d id", ErrMissingField, i)
		}
	}
	return nil
}

// Daytime links run slower than the same links at night.
func timeOfDayFactor(timeOfDay string) float64 {
	if timeOfDay == "night" {
		return 1.0
	}
	return 1.2
}

// Optimize runs the full pipeline: validate, partition by capacity, sequence
// each cluster, and cost every leg with the current traffic and weather
// snapshot. Capacity shortfalls degrade to unassigned stops rather than
// failing the request.
func (e *Engine) Optimize(ctx context.Context, req model.OptimizeRequest) (model.RoutingSolution, error) {
	started := time.Now()
	if err := validate(req); err != nil {
		return model.RoutingSolution{}, err
	}
	maxStops := req.MaxStopsPerVehicle
	if maxStops <= 0 {
		maxStops = defaultMaxStopsPerVehicle
	}

	var density float64
	var incidents []model.Incident
	if e.Traffic != nil {
		density, incidents = e.Traffic.Aggregate()
	}
	w := weather.Default()
	if req.Weather != nil {
		w = *req.Weather
	} else if e.Weather != nil {
		w = weather.CurrentOrDefault(ctx, e.Weather, *req.Depot)
	}
	todFactor := timeOfDayFactor(req.TimeOfDay)

	assignment := opt.Partition(req.Stops, req.Vehicles, maxStops)

	sol := model.RoutingSolution{
		ID:        uuid.New().String(),
		Status:    model.StatusOK,
		Routes:    []model.VehicleRoute{},
		CreatedAt: started.UTC(),
	}
	stats := opt.Stats{Vehicles: len(req.Vehicles), Stops: len(req.Stops)}

	for _, cluster := range assignment.Clusters {
		if err := ctx.Err(); err != nil {
			return model.RoutingSolution{}, err
		}
		if len(cluster.Stops) == 0 {
			continue
		}
		ordered := e.Sequencer.Sequence(*req.Depot, cluster.Stops)
		if len(cluster.Stops) <= e.Sequencer.BruteForceMax {
			stats.BruteForced++
		} else {
			stats.Heuristic++
		}

		route := model.VehicleRoute{
			VehicleID:   cluster.Vehicle.ID,
			VehicleType: cluster.Vehicle.Type,
			Stops:       ordered,
		}
		load := cluster.Vehicle.CurrentLoadKg
		for _, s := range ordered {
			load += s.DemandKg
		}

		// Legs cover depot -> stops -> depot: one more leg than stops.
		points := make([]model.GeoPoint, 0, len(ordered)+2)
		points = append(points, *req.Depot)
		for _, s := range ordered {
			points = append(points, s.Point())
		}
		points = append(points, *req.Depot)

		for i := 0; i+1 < len(points); i++ {
			leg := e.Cost.Leg(cost.LegInput{
				From:           points[i],
				To:             points[i+1],
				DistanceKm:     geo.HaversineKm(points[i], points[i+1]),
				VehicleType:    cluster.Vehicle.Type,
				LoadKg:         load,
				TrafficDensity: density,
				Incidents:      incidents,
				Weather:        w,
				RoadCondition:  req.RoadCondition,
			})
			leg.TimeMin *= todFactor
			route.Legs = append(route.Legs, leg)
			route.DistanceKm += leg.DistanceKm
			route.TimeMin += leg.TimeMin
			route.FuelL += leg.FuelL
			route.EmissionsKg += leg.EmissionsKg
		}
		stats.TotalTourKm += route.DistanceKm
		sol.Routes = append(sol.Routes, route)
	}

	sol.UnassignedStops = assignment.Unassigned
	if len(sol.UnassignedStops) > 0 {
		sol.Status = model.StatusPartial
	}
	for _, r := range sol.Routes {
		sol.Summary.TotalDistanceKm += r.DistanceKm
		sol.Summary.TotalTimeMin += r.TimeMin
		sol.Summary.TotalFuelL += r.FuelL
		sol.Summary.TotalEmissionsKg += r.EmissionsKg
		if len(r.Stops) > 0 {
			sol.Summary.VehiclesUsed++
		}
	}

	stats.Unassigned = len(sol.UnassignedStops)
	stats.ElapsedMs = time.Since(started).Milliseconds()
	if e.Stats != nil {
		e.Stats.Record(sol.ID, stats)
	}
	metrics.OptimizeDuration.Observe(time.Since(started).Seconds())
	metrics.OptimizeRequests.WithLabelValues(sol.Status).Inc()

	if req.Persist && e.Store != nil {
		if err := e.Store.SaveSolution(ctx, sol); err != nil {
			// Persistence is best effort; the computed solution still stands.
			log.Printf("engine: persist solution %s: %v", sol.ID, err)
		}
	}
	return sol, nil
}
