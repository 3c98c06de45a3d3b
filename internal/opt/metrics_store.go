package opt

import "sync"

// Stats summarizes how a solution's visiting orders were produced.
type Stats struct {
	Vehicles    int
	Stops       int
	Unassigned  int
	BruteForced int // clusters solved exactly
	Heuristic   int // clusters solved by nearest neighbor
	TotalTourKm float64
	ElapsedMs   int64
}

// StatsStore keeps recent solver stats keyed by solution id. It is injected
// where needed rather than held as a package global.
type StatsStore struct {
	mu sync.Mutex
	m  map[string]Stats
}

func NewStatsStore() *StatsStore {
	return &StatsStore{m: map[string]Stats{}}
}

func (s *StatsStore) Record(solutionID string, st Stats) {
	s.mu.Lock()
	s.m[solutionID] = st
	s.mu.Unlock()
}

func (s *StatsStore) Get(solutionID string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[solutionID]
	return st, ok
}
