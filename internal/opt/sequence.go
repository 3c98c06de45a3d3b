package opt

import (
	"math"

	"fleetroute/internal/geo"
	"fleetroute/internal/model"
)

// DefaultBruteForceMax bounds exact TSP enumeration: 8 stops means 8! = 40320
// permutations, the practical ceiling before the heuristic takes over. The
// threshold is a runtime/optimality tradeoff, tunable via config.
const DefaultBruteForceMax = 8

// Sequencer orders a vehicle's assigned stops into a visiting sequence that
// starts and ends at the depot.
type Sequencer struct {
	// BruteForceMax is the largest stop count solved exactly.
	BruteForceMax int
	// TwoOptIterations bounds the 2-opt improvement pass applied to
	// nearest-neighbor orders. Zero disables the pass.
	TwoOptIterations int
}

func NewSequencer(bruteForceMax, twoOptIterations int) *Sequencer {
	if bruteForceMax <= 0 {
		bruteForceMax = DefaultBruteForceMax
	}
	return &Sequencer{BruteForceMax: bruteForceMax, TwoOptIterations: twoOptIterations}
}

// Sequence returns stops reordered into the visiting order. The depot legs are
// implied, not included. Small instances are solved exactly; larger ones use
// nearest neighbor with an optional 2-opt cleanup.
func (sq *Sequencer) Sequence(depot model.GeoPoint, stops []model.Stop) []model.Stop {
	if len(stops) <= 1 {
		return append([]model.Stop(nil), stops...)
	}
	var order []int
	if len(stops) <= sq.BruteForceMax {
		order = bruteForceOrder(depot, stops)
	} else {
		order = nearestNeighborOrder(depot, stops)
		if sq.TwoOptIterations > 0 {
			order = improve2Opt(depot, stops, order, sq.TwoOptIterations)
		}
	}
	out := make([]model.Stop, len(order))
	for i, idx := range order {
		out[i] = stops[idx]
	}
	return out
}

// TourKm is the round-trip distance depot -> stops... -> depot.
func TourKm(depot model.GeoPoint, stops []model.Stop) float64 {
	if len(stops) == 0 {
		return 0
	}
	total := geo.HaversineKm(depot, stops[0].Point())
	for i := 0; i < len(stops)-1; i++ {
		total += geo.HaversineKm(stops[i].Point(), stops[i+1].Point())
	}
	total += geo.HaversineKm(stops[len(stops)-1].Point(), depot)
	return total
}

// bruteForceOrder enumerates permutations in lexicographic index order and
// keeps the first one achieving the minimum tour distance, so ties break by
// input order.
func bruteForceOrder(depot model.GeoPoint, stops []model.Stop) []int {
	n := len(stops)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	best := append([]int(nil), idx...)
	bestDist := tourKmByIndex(depot, stops, idx)
	for nextPermutation(idx) {
		if d := tourKmByIndex(depot, stops, idx); d < bestDist {
			bestDist = d
			copy(best, idx)
		}
	}
	return best
}

// nextPermutation advances idx to the next lexicographic permutation,
// returning false once the sequence wraps.
func nextPermutation(idx []int) bool {
	n := len(idx)
	i := n - 2
	for i >= 0 && idx[i] >= idx[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := n - 1
	for idx[j] <= idx[i] {
		j--
	}
	idx[i], idx[j] = idx[j], idx[i]
	for l, r := i+1, n-1; l < r; l, r = l+1, r-1 {
		idx[l], idx[r] = idx[r], idx[l]
	}
	return true
}

// nearestNeighborOrder greedily walks from the depot to the closest unvisited
// stop. Ties break toward the lowest input index because the scan keeps the
// first strict minimum.
func nearestNeighborOrder(depot model.GeoPoint, stops []model.Stop) []int {
	n := len(stops)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	cur := depot
	for len(order) < n {
		next := -1
		minDist := math.MaxFloat64
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if d := geo.HaversineKm(cur, stops[j].Point()); d < minDist {
				minDist = d
				next = j
			}
		}
		order = append(order, next)
		visited[next] = true
		cur = stops[next].Point()
	}
	return order
}

// improve2Opt applies segment-reversal improvements to the order, honoring the
// fixed depot endpoints, until no swap helps or iterations run out.
func improve2Opt(depot model.GeoPoint, stops []model.Stop, order []int, iterations int) []int {
	best := append([]int(nil), order...)
	bestDist := tourKmByIndex(depot, stops, best)
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := append([]int(nil), best...)
				for l, r := i, k; l < r; l, r = l+1, r-1 {
					cand[l], cand[r] = cand[r], cand[l]
				}
				if d := tourKmByIndex(depot, stops, cand); d+1e-9 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func tourKmByIndex(depot model.GeoPoint, stops []model.Stop, order []int) float64 {
	total := geo.HaversineKm(depot, stops[order[0]].Point())
	for i := 0; i < len(order)-1; i++ {
		total += geo.HaversineKm(stops[order[i]].Point(), stops[order[i+1]].Point())
	}
	total += geo.HaversineKm(stops[order[len(order)-1]].Point(), depot)
	return total
}
