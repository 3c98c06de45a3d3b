package api

import (
	"fmt"
	"strings"

	"fleetroute/internal/model"
)

var allowedRoadConditions = map[string]struct{}{
	"excellent": {}, "good": {}, "average": {}, "poor": {}, "terrible": {},
}

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.TimeOfDay != "" && req.TimeOfDay != "day" && req.TimeOfDay != "night" {
		return fmt.Errorf("time_of_day must be day or night")
	}
	if req.MaxStopsPerVehicle < 0 {
		return fmt.Errorf("max_stops_per_vehicle must be >= 0")
	}
	if req.RoadCondition != "" {
		if _, ok := allowedRoadConditions[strings.ToLower(req.RoadCondition)]; !ok {
			return fmt.Errorf("unknown road_condition: %s (allowed: excellent,good,average,poor,terrible)", req.RoadCondition)
		}
	}
	for i, v := range req.Vehicles {
		if v.CapacityKg < 0 {
			return fmt.Errorf("vehicle %d: capacity_kg must be >= 0", i)
		}
		if v.CurrentLoadKg < 0 {
			return fmt.Errorf("vehicle %d: current_load_kg must be >= 0", i)
		}
	}
	for i, s := range req.Stops {
		if s.DemandKg < 0 {
			return fmt.Errorf("stop %d: demand_kg must be >= 0", i)
		}
	}
	return nil
}

func validateCameraRegistration(reg *model.CameraRegistration) error {
	if reg.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}
	return nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events is required")
	}
	return nil
}
