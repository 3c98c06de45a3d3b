package model

import "time"

// Core domain types shared across the routing engine and traffic pipeline.

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stop is a demand location visited by exactly one vehicle per solution.
type Stop struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	DemandKg float64 `json:"demand_kg"`
	Name     string  `json:"name,omitempty"`
	Address  string  `json:"address,omitempty"`
}

// Point returns the stop coordinates as a GeoPoint.
func (s Stop) Point() GeoPoint { return GeoPoint{Lat: s.Lat, Lng: s.Lng} }

// Vehicle types understood by the fuel model.
const (
	VehicleSedan = "sedan"
	VehicleSUV   = "suv"
	VehicleTruck = "truck"
	VehicleVan   = "van"
)

type Vehicle struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	CapacityKg    float64 `json:"capacity_kg"`
	CurrentLoadKg float64 `json:"current_load_kg"`
}

// RemainingCapacityKg is the demand weight the vehicle can still take on.
func (v Vehicle) RemainingCapacityKg() float64 { return v.CapacityKg - v.CurrentLoadKg }

// Weather is the structured condition record supplied by the weather
// collaborator (or its documented default).
type Weather struct {
	Condition        string    `json:"condition"`
	TemperatureC     float64   `json:"temperature_c"`
	PrecipitationMmH float64   `json:"precipitation_mm_h"`
	WindSpeedKmh     float64   `json:"wind_speed_kmh"`
	HumidityPct      float64   `json:"humidity_pct"`
	VisibilityKm     float64   `json:"visibility_km"`
	Timestamp        time.Time `json:"timestamp"`
}

// Incident severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type Incident struct {
	ID          string    `json:"id,omitempty"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Location    GeoPoint  `json:"location"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrafficConditions is a per-source snapshot of the shared traffic state.
// Copies are handed to readers; only the feed processor mutates the original.
type TrafficConditions struct {
	VehicleCount int        `json:"vehicle_count"`
	Density      float64    `json:"density"`
	IsCongested  bool       `json:"is_congested"`
	Incidents    []Incident `json:"incidents,omitempty"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// Detection is one object returned by the vehicle-detection collaborator.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	TrackID    int        `json:"track_id,omitempty"`
}

// FuelFactors breaks down the multiplicative adjustments applied to the base
// consumption rate for one leg.
type FuelFactors struct {
	Load      float64 `json:"load"`
	Speed     float64 `json:"speed"`
	Elevation float64 `json:"elevation"`
	Road      float64 `json:"road"`
}

// RouteLeg is one directed edge of a vehicle route, depot legs included.
type RouteLeg struct {
	From               GeoPoint    `json:"from"`
	To                 GeoPoint    `json:"to"`
	DistanceKm         float64     `json:"distance_km"`
	TrafficFactor      float64     `json:"traffic_factor"`
	WeatherFactor      float64     `json:"weather_factor"`
	TimeMin            float64     `json:"time_min"`
	FuelL              float64     `json:"fuel_l"`
	EmissionsKg        float64     `json:"emissions_kg"`
	FuelFactors        FuelFactors `json:"fuel_factors"`
	UnknownVehicleType bool        `json:"unknown_vehicle_type,omitempty"`
}

type VehicleRoute struct {
	VehicleID   string     `json:"vehicle_id"`
	VehicleType string     `json:"vehicle_type"`
	Stops       []Stop     `json:"stops"`
	Legs        []RouteLeg `json:"legs"`
	DistanceKm  float64    `json:"distance_km"`
	TimeMin     float64    `json:"time_min"`
	FuelL       float64    `json:"fuel_l"`
	EmissionsKg float64    `json:"emissions_kg"`
}

// UnassignedStop is a stop the solver could not place on any vehicle.
type UnassignedStop struct {
	Stop   Stop   `json:"stop"`
	Reason string `json:"reason"`
}

type Summary struct {
	TotalDistanceKm  float64 `json:"total_distance_km"`
	TotalTimeMin     float64 `json:"total_time_min"`
	TotalFuelL       float64 `json:"total_fuel_l"`
	TotalEmissionsKg float64 `json:"total_emissions_kg"`
	VehiclesUsed     int     `json:"vehicles_used"`
}

// Solution statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
)

type RoutingSolution struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Routes          []VehicleRoute   `json:"routes"`
	UnassignedStops []UnassignedStop `json:"unassigned_stops"`
	Summary         Summary          `json:"summary"`
	CreatedAt       time.Time        `json:"created_at"`
}

type OptimizeRequest struct {
	Vehicles           []Vehicle `json:"vehicles"`
	Stops              []Stop    `json:"stops"`
	Depot              *GeoPoint `json:"depot"`
	TimeOfDay          string    `json:"time_of_day,omitempty"`
	MaxStopsPerVehicle int       `json:"max_stops_per_vehicle,omitempty"`
	Weather            *Weather  `json:"weather,omitempty"`
	RoadCondition      string    `json:"road_condition,omitempty"`
	Persist            bool      `json:"persist,omitempty"`
}

// CameraRegistration registers a traffic camera as a frame source.
type CameraRegistration struct {
	CameraID string   `json:"camera_id"`
	FeedURL  string   `json:"feed_url,omitempty"`
	Location GeoPoint `json:"location"`
}

type CameraStatus struct {
	Status            string            `json:"status"`
	LastUpdate        string            `json:"last_update"`
	TrafficConditions TrafficConditions `json:"traffic_conditions"`
	Location          GeoPoint          `json:"location"`
}

// SubscriptionRequest registers a webhook endpoint for traffic alert events.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
