package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetroute/internal/model"
)

func TestMemorySolutions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sol := model.RoutingSolution{ID: "sol1", Status: model.StatusOK, CreatedAt: time.Now()}
	if err := m.SaveSolution(ctx, sol); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetSolution(ctx, "sol1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "sol1" || got.Status != model.StatusOK {
		t.Fatalf("got %+v", got)
	}
	if _, err := m.GetSolution(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryListSolutionsPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		if err := m.SaveSolution(ctx, model.RoutingSolution{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	page1, next, err := m.ListSolutions(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 || next != "b" {
		t.Fatalf("page1 = %d items, next = %q", len(page1), next)
	}
	page2, next, err := m.ListSolutions(ctx, next, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 1 || page2[0].ID != "c" || next != "" {
		t.Fatalf("page2 = %+v, next = %q", page2, next)
	}
}

func TestMemoryCameras(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cam := model.CameraRegistration{CameraID: "cam1", FeedURL: "rtsp://example/1", Location: model.GeoPoint{Lat: 12.97, Lng: 77.59}}
	if err := m.SaveCamera(ctx, cam); err != nil {
		t.Fatal(err)
	}
	list, err := m.ListCameras(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, err = %v", list, err)
	}
	if err := m.DeleteCamera(ctx, "cam1"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteCamera(ctx, "cam1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemorySubscriptionsByEvent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s1, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"traffic.congested"}, Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"incident.reported"}}); err != nil {
		t.Fatal(err)
	}
	subs, err := m.GetSubscriptionsForEvent(ctx, "traffic.congested")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].ID != s1.ID {
		t.Fatalf("subs = %+v", subs)
	}
	if err := m.DeleteSubscription(ctx, s1.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteSubscription(ctx, s1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueDelivery(ctx, "sub1", "traffic.congested", "http://hook", "secret", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	due, err := m.FetchDueDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %+v, err = %v", due, err)
	}

	// Retry pushes the next attempt into the future.
	next := time.Now().Add(time.Hour)
	if err := m.MarkDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry should not be due yet: %+v", due)
	}

	if err := m.MarkDelivery(ctx, id, true, nil, "", 200, 8); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered entry still due: %+v", due)
	}
}

func TestMemoryIncidents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	old := model.Incident{ID: "i0", Type: "hazard", Severity: model.SeverityLow, Timestamp: time.Now().Add(-3 * time.Hour)}
	fresh := model.Incident{ID: "i1", Type: "accident", Severity: model.SeverityHigh, Timestamp: time.Now()}
	if err := m.SaveIncident(ctx, "cam1", old); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveIncident(ctx, "cam1", fresh); err != nil {
		t.Fatal(err)
	}
	got, err := m.ListIncidents(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "i1" {
		t.Fatalf("got %+v", got)
	}
}
