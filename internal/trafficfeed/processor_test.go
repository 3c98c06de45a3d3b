package trafficfeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetroute/internal/model"
)

// stubDetector returns a fixed number of vehicle detections, or an error.
type stubDetector struct {
	vehicles int
	err      error
}

func (d stubDetector) Detect(_ context.Context, _ Frame) ([]model.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]model.Detection, d.vehicles+1)
	for i := 0; i < d.vehicles; i++ {
		out[i] = model.Detection{Class: "car", Confidence: 0.9}
	}
	// A non-vehicle detection that must not count toward density.
	out[d.vehicles] = model.Detection{Class: "person", Confidence: 0.8}
	return out, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestProcessorCongestionAndDensity(t *testing.T) {
	p := NewProcessor(stubDetector{vehicles: 12}, Config{IdleSleep: time.Millisecond})
	p.Start()
	defer p.Close()

	if err := p.Register("cam1", model.GeoPoint{Lat: 12.97, Lng: 77.59}); err != nil {
		t.Fatal(err)
	}
	if err := p.Push("cam1", Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		tc, err := p.Snapshot("cam1")
		return err == nil && tc.VehicleCount == 12
	})
	tc, err := p.Snapshot("cam1")
	if err != nil {
		t.Fatal(err)
	}
	if !tc.IsCongested {
		t.Fatal("12 vehicles should be congested")
	}
	if tc.Density != 0.24 {
		t.Fatalf("density = %v, want 0.24", tc.Density)
	}
	if tc.LastUpdated.IsZero() {
		t.Fatal("LastUpdated not set")
	}
}

func TestProcessorDetectionFailureKeepsLastState(t *testing.T) {
	det := &switchableDetector{inner: stubDetector{vehicles: 12}}
	p := NewProcessor(det, Config{IdleSleep: time.Millisecond})
	p.Start()
	defer p.Close()

	if err := p.Register("cam1", model.GeoPoint{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Push("cam1", Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		tc, _ := p.Snapshot("cam1")
		return tc.VehicleCount == 12
	})

	det.fail(errors.New("model crashed"))
	if err := p.Push("cam1", Frame{Seq: 2}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return p.QueueDepth("cam1") == 0 })

	tc, _ := p.Snapshot("cam1")
	if tc.VehicleCount != 12 || !tc.IsCongested {
		t.Fatalf("state changed after detection failure: %+v", tc)
	}
}

type switchableDetector struct {
	mu    sync.Mutex
	inner stubDetector
	err   error
}

func (d *switchableDetector) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *switchableDetector) Detect(ctx context.Context, f Frame) ([]model.Detection, error) {
	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.inner.Detect(ctx, f)
}

func TestProcessorRegisterErrors(t *testing.T) {
	p := NewProcessor(stubDetector{}, Config{})
	defer p.Close()
	if err := p.Register("cam1", model.GeoPoint{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Register("cam1", model.GeoPoint{}); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("got %v, want ErrSourceExists", err)
	}
	if err := p.Deregister("nope"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("got %v, want ErrSourceNotFound", err)
	}
	if err := p.Push("nope", Frame{}); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("got %v, want ErrSourceNotFound", err)
	}
	if err := p.Deregister("cam1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Snapshot("cam1"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("got %v, want ErrSourceNotFound", err)
	}
}

func TestProcessorOnUpdateCongestionTransition(t *testing.T) {
	transitions := make(chan bool, 4)
	p := NewProcessor(stubDetector{vehicles: 12}, Config{IdleSleep: time.Millisecond})
	p.OnUpdate = func(sourceID string, tc model.TrafficConditions, became bool) {
		transitions <- became
	}
	p.Start()
	defer p.Close()

	if err := p.Register("cam1", model.GeoPoint{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Push("cam1", Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	select {
	case became := <-transitions:
		if !became {
			t.Fatal("first congested frame should mark the transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnUpdate never fired")
	}

	// A second congested frame is not a transition.
	if err := p.Push("cam1", Frame{Seq: 2}); err != nil {
		t.Fatal(err)
	}
	select {
	case became := <-transitions:
		if became {
			t.Fatal("steady congestion should not re-fire the transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnUpdate never fired for second frame")
	}
}

func TestProcessorIncidentRetention(t *testing.T) {
	p := NewProcessor(stubDetector{vehicles: 1}, Config{
		IdleSleep:         time.Millisecond,
		IncidentRetention: 50 * time.Millisecond,
	})
	p.Start()
	defer p.Close()

	if err := p.Register("cam1", model.GeoPoint{}); err != nil {
		t.Fatal(err)
	}
	err := p.ReportIncident("cam1", model.Incident{
		ID: "i1", Type: "accident", Severity: model.SeverityHigh,
		Location: model.GeoPoint{Lat: 12.97, Lng: 77.59},
	})
	if err != nil {
		t.Fatal(err)
	}
	tc, _ := p.Snapshot("cam1")
	if len(tc.Incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(tc.Incidents))
	}

	time.Sleep(60 * time.Millisecond)
	if err := p.Push("cam1", Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		tc, _ := p.Snapshot("cam1")
		return !tc.LastUpdated.IsZero()
	})
	tc, _ = p.Snapshot("cam1")
	if len(tc.Incidents) != 0 {
		t.Fatalf("stale incident not pruned: %+v", tc.Incidents)
	}
}

func TestProcessorAggregateWorstDensity(t *testing.T) {
	p := NewProcessor(stubDetector{}, Config{})
	defer p.Close()
	for _, id := range []string{"cam1", "cam2"} {
		if err := p.Register(id, model.GeoPoint{}); err != nil {
			t.Fatal(err)
		}
	}
	p.Start()
	if err := p.Push("cam1", Frame{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		tc, _ := p.Snapshot("cam1")
		return !tc.LastUpdated.IsZero()
	})
	if err := p.ReportIncident("cam2", model.Incident{ID: "i1", Type: "hazard", Severity: model.SeverityLow}); err != nil {
		t.Fatal(err)
	}
	density, incidents := p.Aggregate()
	if density != 0 {
		t.Fatalf("density = %v, want 0 (stub yields no vehicles)", density)
	}
	if len(incidents) != 1 || incidents[0].ID != "i1" {
		t.Fatalf("incidents = %+v", incidents)
	}
}

// chanSource feeds frames from a channel, for Attach tests.
type chanSource struct{ ch chan Frame }

func (s chanSource) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.ch:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func TestProcessorAttachPullsFrames(t *testing.T) {
	p := NewProcessor(stubDetector{vehicles: 3}, Config{IdleSleep: time.Millisecond})
	p.Start()
	defer p.Close()

	if err := p.Register("cam1", model.GeoPoint{}); err != nil {
		t.Fatal(err)
	}
	src := chanSource{ch: make(chan Frame, 1)}
	if err := p.Attach("cam1", src); err != nil {
		t.Fatal(err)
	}
	if err := p.Attach("cam1", src); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("second attach: got %v, want ErrSourceExists", err)
	}
	src.ch <- Frame{Seq: 9}
	waitFor(t, func() bool {
		tc, _ := p.Snapshot("cam1")
		return tc.VehicleCount == 3
	})
}
