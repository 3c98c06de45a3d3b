package opt

import "fleetroute/internal/model"

// Reasons attached to unassigned stops.
const (
	ReasonExceedsCapacity   = "exceeds_vehicle_capacity"
	ReasonNeedsExtraVehicle = "requires_additional_vehicle"
)

// Cluster is one vehicle's share of the demand stops.
type Cluster struct {
	Vehicle model.Vehicle
	Stops   []model.Stop
}

// Assignment is the output of Partition: at most one cluster per vehicle,
// plus the stops no vehicle could take.
type Assignment struct {
	Clusters   []Cluster
	Unassigned []model.UnassignedStop
}

// Partition assigns stops to vehicles round-robin (stop i goes to vehicle
// i mod n), preserving input order within each cluster, then enforces
// maxPerVehicle and per-vehicle remaining capacity.
//
// Overflow beyond maxPerVehicle spills into synthetic sub-clusters; once the
// vehicle list is exhausted those stops are surfaced as unassigned with
// ReasonNeedsExtraVehicle rather than silently dropped. Stops whose cumulative
// demand would exceed a vehicle's remaining capacity are surfaced with
// ReasonExceedsCapacity; the vehicle still serves the stops that fit.
func Partition(stops []model.Stop, vehicles []model.Vehicle, maxPerVehicle int) Assignment {
	out := Assignment{}
	if len(vehicles) == 0 {
		for _, s := range stops {
			out.Unassigned = append(out.Unassigned, model.UnassignedStop{Stop: s, Reason: ReasonNeedsExtraVehicle})
		}
		return out
	}

	raw := make([][]model.Stop, len(vehicles))
	for i, s := range stops {
		vi := i % len(vehicles)
		raw[vi] = append(raw[vi], s)
	}

	// Split clusters that exceed maxPerVehicle. The head chunk stays with the
	// vehicle; the tail chunks have no vehicle left to serve them.
	for vi, cluster := range raw {
		keep := cluster
		if maxPerVehicle > 0 && len(cluster) > maxPerVehicle {
			keep = cluster[:maxPerVehicle]
			for _, s := range cluster[maxPerVehicle:] {
				out.Unassigned = append(out.Unassigned, model.UnassignedStop{Stop: s, Reason: ReasonNeedsExtraVehicle})
			}
		}

		v := vehicles[vi]
		fit, over := splitByCapacity(keep, v.RemainingCapacityKg())
		for _, s := range over {
			out.Unassigned = append(out.Unassigned, model.UnassignedStop{Stop: s, Reason: ReasonExceedsCapacity})
		}
		out.Clusters = append(out.Clusters, Cluster{Vehicle: v, Stops: fit})
	}
	return out
}

// splitByCapacity keeps stops in order while cumulative demand fits, and
// returns the remainder separately.
func splitByCapacity(stops []model.Stop, capacityKg float64) (fit, over []model.Stop) {
	var load float64
	for _, s := range stops {
		if load+s.DemandKg > capacityKg {
			over = append(over, s)
			continue
		}
		load += s.DemandKg
		fit = append(fit, s)
	}
	return fit, over
}
