package trafficfeed

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
)

// Registration errors.
var (
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")
)

// Frame is one unit of work pushed by a camera source.
type Frame struct {
	SourceID  string
	Seq       int64
	Data      []byte
	Timestamp time.Time
}

// Detector is the vehicle-detection collaborator. Implementations return the
// raw detections for a frame; the processor filters them to vehicle classes.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]model.Detection, error)
}

// FrameSource pulls raw frames from an external feed (RTSP puller, file
// replay, test stub). Next blocks until a frame is available or ctx is done.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Vehicle classes counted toward traffic density, matching the detection
// collaborator's label set.
var vehicleClasses = map[string]bool{
	"car":        true,
	"motorcycle": true,
	"bus":        true,
	"truck":      true,
}

// Config tunes the feed processor. Zero values select the defaults.
type Config struct {
	QueueSize           int           // per-source frame queue capacity (default 10)
	Workers             int           // worker pool size (default 3)
	CongestionThreshold int           // vehicle count above which a source is congested (default 10)
	DensityDivisor      float64       // density = min(1, count/divisor) (default 50)
	IncidentRetention   time.Duration // incidents older than this are pruned (default 2h)
	FrameRate           rate.Limit    // producer intake ceiling, frames/sec (default 100)
	IdleSleep           time.Duration // worker sleep when every queue is empty (default 10ms)
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 10
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.CongestionThreshold <= 0 {
		c.CongestionThreshold = 10
	}
	if c.DensityDivisor <= 0 {
		c.DensityDivisor = 50
	}
	if c.IncidentRetention <= 0 {
		c.IncidentRetention = 2 * time.Hour
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 100
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 10 * time.Millisecond
	}
	return c
}

type source struct {
	id       string
	location model.GeoPoint
	queue    *frameQueue
	cancel   context.CancelFunc // stops the attached producer, if any

	// processing guards single-writer-per-key: at most one worker updates a
	// source's state at a time; others skip rather than wait.
	processing sync.Mutex

	mu    sync.Mutex
	state model.TrafficConditions
}

func (s *source) snapshot() model.TrafficConditions {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.state
	cp.Incidents = append([]model.Incident(nil), s.state.Incidents...)
	return cp
}

// Processor maintains per-source frame queues and a fixed worker pool that
// drains them into the shared traffic state.
type Processor struct {
	cfg Config
	det Detector

	// OnUpdate, when set, is called after each processed frame with the fresh
	// snapshot. becameCongested marks the uncongested->congested transition.
	OnUpdate func(sourceID string, tc model.TrafficConditions, becameCongested bool)

	mu      sync.RWMutex
	sources map[string]*source

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewProcessor(det Detector, cfg Config) *Processor {
	return &Processor{
		cfg:     cfg.withDefaults(),
		det:     det,
		sources: map[string]*source{},
		stop:    make(chan struct{}),
	}
}

// Start launches the worker pool. Idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Close stops workers and all attached producers.
func (p *Processor) Close() {
	close(p.stop)
	p.mu.Lock()
	for _, s := range p.sources {
		if s.cancel != nil {
			s.cancel()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Register creates the bounded queue and state entry for a source.
func (p *Processor) Register(sourceID string, location model.GeoPoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sources[sourceID]; ok {
		return ErrSourceExists
	}
	p.sources[sourceID] = &source{
		id:       sourceID,
		location: location,
		queue:    newFrameQueue(p.cfg.QueueSize),
	}
	metrics.ActiveSources.Inc()
	return nil
}

// Deregister stops the source's producer, discards its queue, and removes its
// state entry.
func (p *Processor) Deregister(sourceID string) error {
	p.mu.Lock()
	s, ok := p.sources[sourceID]
	if ok {
		delete(p.sources, sourceID)
	}
	p.mu.Unlock()
	if !ok {
		return ErrSourceNotFound
	}
	if s.cancel != nil {
		s.cancel()
	}
	metrics.ActiveSources.Dec()
	return nil
}

// Attach starts a dedicated producer goroutine pulling frames from src into
// the source's queue, throttled by the configured frame rate.
func (p *Processor) Attach(sourceID string, src FrameSource) error {
	p.mu.Lock()
	s, ok := p.sources[sourceID]
	if !ok {
		p.mu.Unlock()
		return ErrSourceNotFound
	}
	if s.cancel != nil {
		p.mu.Unlock()
		return ErrSourceExists
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	p.mu.Unlock()

	limiter := rate.NewLimiter(p.cfg.FrameRate, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			frame, err := src.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("trafficfeed: source %s: frame pull failed: %v", sourceID, err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			frame.SourceID = sourceID
			_ = p.Push(sourceID, frame)
		}
	}()
	return nil
}

// Push enqueues a frame for processing. When the queue is full the oldest
// frame is dropped; Push never blocks.
func (p *Processor) Push(sourceID string, frame Frame) error {
	p.mu.RLock()
	s, ok := p.sources[sourceID]
	p.mu.RUnlock()
	if !ok {
		return ErrSourceNotFound
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	frame.SourceID = sourceID
	if s.queue.push(frame) {
		metrics.FramesDropped.WithLabelValues(sourceID).Inc()
	}
	return nil
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		if !p.drainOne() {
			select {
			case <-p.stop:
				return
			case <-time.After(p.cfg.IdleSleep):
			}
		}
	}
}

// drainOne polls every source queue once and processes the first available
// frame. Returns false when all queues were empty.
func (p *Processor) drainOne() bool {
	p.mu.RLock()
	sources := make([]*source, 0, len(p.sources))
	for _, s := range p.sources {
		sources = append(sources, s)
	}
	p.mu.RUnlock()

	for _, s := range sources {
		// Skip sources another worker is already updating.
		if !s.processing.TryLock() {
			continue
		}
		frame, ok := s.queue.pop()
		if !ok {
			s.processing.Unlock()
			continue
		}
		p.process(s, frame)
		s.processing.Unlock()
		return true
	}
	return false
}

func (p *Processor) process(s *source, frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	detections, err := p.det.Detect(ctx, frame)
	if err != nil {
		// Frame is discarded; the source keeps its last known state.
		log.Printf("trafficfeed: source %s: detection failed, frame discarded: %v", s.id, err)
		metrics.DetectionFailures.WithLabelValues(s.id).Inc()
		return
	}

	count := 0
	for _, d := range detections {
		if vehicleClasses[strings.ToLower(d.Class)] {
			count++
		}
	}
	density := float64(count) / p.cfg.DensityDivisor
	if density > 1 {
		density = 1
	}

	s.mu.Lock()
	wasCongested := s.state.IsCongested
	s.state.VehicleCount = count
	s.state.Density = density
	s.state.IsCongested = count > p.cfg.CongestionThreshold
	s.state.LastUpdated = frame.Timestamp
	s.state.Incidents = pruneIncidents(s.state.Incidents, time.Now().Add(-p.cfg.IncidentRetention))
	becameCongested := !wasCongested && s.state.IsCongested
	s.mu.Unlock()

	metrics.FramesProcessed.WithLabelValues(s.id).Inc()
	if p.OnUpdate != nil {
		p.OnUpdate(s.id, s.snapshot(), becameCongested)
	}
}

// ReportIncident appends an incident to a source's state.
func (p *Processor) ReportIncident(sourceID string, inc model.Incident) error {
	p.mu.RLock()
	s, ok := p.sources[sourceID]
	p.mu.RUnlock()
	if !ok {
		return ErrSourceNotFound
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.state.Incidents = append(pruneIncidents(s.state.Incidents, time.Now().Add(-p.cfg.IncidentRetention)), inc)
	s.mu.Unlock()
	return nil
}

func pruneIncidents(incs []model.Incident, cutoff time.Time) []model.Incident {
	out := incs[:0]
	for _, inc := range incs {
		if inc.Timestamp.After(cutoff) {
			out = append(out, inc)
		}
	}
	return out
}

// Snapshot returns a copy of one source's traffic conditions.
func (p *Processor) Snapshot(sourceID string) (model.TrafficConditions, error) {
	p.mu.RLock()
	s, ok := p.sources[sourceID]
	p.mu.RUnlock()
	if !ok {
		return model.TrafficConditions{}, ErrSourceNotFound
	}
	return s.snapshot(), nil
}

// SnapshotAll returns copies of every source's traffic conditions.
func (p *Processor) SnapshotAll() map[string]model.TrafficConditions {
	p.mu.RLock()
	sources := make([]*source, 0, len(p.sources))
	for _, s := range p.sources {
		sources = append(sources, s)
	}
	p.mu.RUnlock()
	out := make(map[string]model.TrafficConditions, len(sources))
	for _, s := range sources {
		out[s.id] = s.snapshot()
	}
	return out
}

// Aggregate condenses all sources into the inputs the cost model needs: the
// worst observed density and the union of fresh incidents.
func (p *Processor) Aggregate() (density float64, incidents []model.Incident) {
	for _, tc := range p.SnapshotAll() {
		if tc.Density > density {
			density = tc.Density
		}
		incidents = append(incidents, tc.Incidents...)
	}
	return density, incidents
}

// Status reports per-source queue and state health for the status endpoint.
func (p *Processor) Status() map[string]model.CameraStatus {
	p.mu.RLock()
	sources := make([]*source, 0, len(p.sources))
	for _, s := range p.sources {
		sources = append(sources, s)
	}
	p.mu.RUnlock()

	out := make(map[string]model.CameraStatus, len(sources))
	for _, s := range sources {
		tc := s.snapshot()
		last := "never"
		if !tc.LastUpdated.IsZero() {
			last = tc.LastUpdated.UTC().Format(time.RFC3339)
		}
		out[s.id] = model.CameraStatus{
			Status:            "active",
			LastUpdate:        last,
			TrafficConditions: tc,
			Location:          s.location,
		}
	}
	return out
}

// QueueDepth reports a source's current queue length (for metrics/tests).
func (p *Processor) QueueDepth(sourceID string) int {
	p.mu.RLock()
	s, ok := p.sources[sourceID]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	return s.queue.len()
}
