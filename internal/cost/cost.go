package cost

import (
	"math"
	"strings"

	"fleetroute/internal/geo"
	"fleetroute/internal/model"
)

// Model converts base leg distances into weighted travel cost using live
// traffic density, incident proximity, and weather conditions. All factors
// are floored at 1.0; they only ever slow a leg down.
type Model struct {
	// BaseSpeedKph is free-flow travel speed before penalties.
	BaseSpeedKph float64
	// IncidentCorridorKm is how close an incident must lie to the
	// straight-line leg before its severity multiplier applies.
	IncidentCorridorKm float64
}

func NewModel(baseSpeedKph, incidentCorridorKm float64) *Model {
	if baseSpeedKph <= 0 {
		baseSpeedKph = 50
	}
	if incidentCorridorKm <= 0 {
		incidentCorridorKm = 1.0
	}
	return &Model{BaseSpeedKph: baseSpeedKph, IncidentCorridorKm: incidentCorridorKm}
}

// Base fuel consumption rates in liters per 100 km.
var baseConsumption = map[string]float64{
	model.VehicleSedan: 7.5,
	model.VehicleSUV:   10.0,
	model.VehicleTruck: 25.0,
	model.VehicleVan:   12.0,
}

const (
	defaultConsumption = 10.0
	emissionsPerLiter  = 2.31 // kg CO2 per liter of diesel
)

// Road condition multipliers applied on top of base consumption.
var roadConditionFactor = map[string]float64{
	"excellent": 1.0,
	"good":      1.1,
	"average":   1.2,
	"poor":      1.4,
	"terrible":  1.7,
}

// Weather condition base factors. Anything unlisted behaves as clear.
var conditionFactor = map[string]float64{
	"clear":         1.0,
	"clouds":        1.0,
	"partly-cloudy": 1.0,
	"cloudy":        1.0,
	"rain":          1.3,
	"light rain":    1.2,
	"moderate rain": 1.4,
	"heavy rain":    1.7,
	"showers":       1.5,
	"drizzle":       1.2,
	"thunderstorm":  2.0,
	"snow":          2.0,
	"light snow":    1.5,
	"heavy snow":    2.5,
	"fog":           1.5,
	"mist":          1.3,
	"haze":          1.2,
	"dust":          1.4,
	"sand":          1.6,
	"ash":           1.8,
	"squall":        2.0,
	"tornado":       3.0,
}

// LegInput carries everything needed to weight a single leg.
type LegInput struct {
	From, To       model.GeoPoint
	DistanceKm     float64
	VehicleType    string
	LoadKg         float64
	TrafficDensity float64
	Incidents      []model.Incident
	Weather        model.Weather
	RoadCondition  string
	ElevationGainM float64
}

// TrafficFactor computes the traffic delay multiplier for a leg: a linear
// density term compounded by severity multipliers for incidents lying within
// the corridor around the straight-line leg.
func (m *Model) TrafficFactor(from, to model.GeoPoint, density float64, incidents []model.Incident) float64 {
	if density < 0 {
		density = 0
	}
	factor := 1.0 + density*1.5
	for _, inc := range incidents {
		if geo.SegmentDistance(from, to, inc.Location) >= m.IncidentCorridorKm {
			continue
		}
		switch inc.Severity {
		case model.SeverityLow:
			factor *= 1.2
		case model.SeverityMedium:
			factor *= 1.5
		case model.SeverityHigh:
			factor *= 2.0
		default:
			factor *= 1.5
		}
	}
	return math.Max(1.0, factor)
}

// WeatherFactor computes the weather delay multiplier: the condition table
// base raised (never lowered) by precipitation, wind, visibility, and
// temperature thresholds. The worst applicable sub-factor wins.
func (m *Model) WeatherFactor(w model.Weather) float64 {
	factor, ok := conditionFactor[strings.ToLower(w.Condition)]
	if !ok {
		factor = 1.0
	}
	switch {
	case w.PrecipitationMmH > 10:
		factor = math.Max(factor, 1.7)
	case w.PrecipitationMmH > 5:
		factor = math.Max(factor, 1.5)
	case w.PrecipitationMmH > 2:
		factor = math.Max(factor, 1.2)
	}
	switch {
	case w.WindSpeedKmh > 50:
		factor = math.Max(factor, 2.0)
	case w.WindSpeedKmh > 30:
		factor = math.Max(factor, 1.5)
	case w.WindSpeedKmh > 20:
		factor = math.Max(factor, 1.2)
	}
	switch {
	case w.VisibilityKm < 0.1:
		factor = math.Max(factor, 2.0)
	case w.VisibilityKm < 0.5:
		factor = math.Max(factor, 1.7)
	case w.VisibilityKm < 1:
		factor = math.Max(factor, 1.3)
	}
	if w.TemperatureC > 35 || w.TemperatureC < -5 {
		factor = math.Max(factor, 1.3)
	}
	return math.Max(1.0, factor)
}

// Fuel computes liters consumed over distanceKm, plus the factor breakdown.
// Unknown vehicle types fall back to a default rate and are flagged, never
// failed.
func (m *Model) Fuel(distanceKm, avgSpeedKph, loadKg, elevationGainM float64, vehicleType, roadCondition string) (float64, model.FuelFactors, bool) {
	base, known := baseConsumption[strings.ToLower(vehicleType)]
	if !known {
		base = defaultConsumption
	}
	road, ok := roadConditionFactor[strings.ToLower(roadCondition)]
	if !ok {
		road = roadConditionFactor["average"]
	}
	f := model.FuelFactors{
		Load:      1 + 0.001*loadKg,
		Speed:     1 + math.Max(0, avgSpeedKph-60)*0.001,
		Elevation: 1 + (elevationGainM/10)*0.001,
		Road:      road,
	}
	adjusted := base * f.Load * f.Speed * f.Elevation * f.Road
	return adjusted / 100 * distanceKm, f, !known
}

// Leg scores a single leg end to end: factors, weighted time, fuel, emissions.
func (m *Model) Leg(in LegInput) model.RouteLeg {
	tf := m.TrafficFactor(in.From, in.To, in.TrafficDensity, in.Incidents)
	wf := m.WeatherFactor(in.Weather)

	speed := m.BaseSpeedKph / (tf * wf)
	if speed < 1 {
		speed = 1
	}
	timeMin := in.DistanceKm / speed * 60

	fuel, factors, unknown := m.Fuel(in.DistanceKm, speed, in.LoadKg, in.ElevationGainM, in.VehicleType, in.RoadCondition)

	return model.RouteLeg{
		From:               in.From,
		To:                 in.To,
		DistanceKm:         in.DistanceKm,
		TrafficFactor:      tf,
		WeatherFactor:      wf,
		TimeMin:            timeMin,
		FuelL:              fuel,
		EmissionsKg:        fuel * emissionsPerLiter,
		FuelFactors:        factors,
		UnknownVehicleType: unknown,
	}
}
