package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"relkit/internal/npm"
)

// fakeRegistry serves a mutable packument and download count.
type fakeRegistry struct {
	latest    string
	versions  []string
	downloads int
}

func (f *fakeRegistry) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/downloads/") {
			fmt.Fprintf(w, `{"downloads": %d}`, f.downloads)
			return
		}
		versions := make([]string, 0, len(f.versions))
		for _, v := range f.versions {
			versions = append(versions, fmt.Sprintf("%q: {}", v))
		}
		fmt.Fprintf(w, `{"name":"widget","dist-tags":{"latest":%q},"versions":{%s}}`,
			f.latest, strings.Join(versions, ","))
	}
}

func newTestMonitor(t *testing.T, f *fakeRegistry, th Thresholds) *Monitor {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	reg := npm.NewRegistry(srv.URL).WithDownloadsURL(srv.URL)
	return New(Options{
		Package:    "widget",
		Version:    "1.3.0",
		Registry:   reg,
		Thresholds: th,
	})
}

func TestObserveHealthy(t *testing.T) {
	f := &fakeRegistry{latest: "1.3.0", versions: []string{"1.2.0", "1.3.0"}, downloads: 500}
	m := newTestMonitor(t, f, DefaultThresholds())

	snap := m.Observe(context.Background())
	if snap.Health != HealthOK {
		t.Errorf("Health = %s, problems = %v", snap.Health, snap.Problems)
	}
	if !snap.RegistryOK || snap.Downloads != 500 || snap.LatestDistTag != "1.3.0" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestObserveMissingVersionFails(t *testing.T) {
	f := &fakeRegistry{latest: "1.2.0", versions: []string{"1.2.0"}}
	m := newTestMonitor(t, f, DefaultThresholds())

	snap := m.Observe(context.Background())
	if snap.Health != HealthFailing {
		t.Errorf("Health = %s, want failing", snap.Health)
	}
	if len(snap.Problems) == 0 || !strings.Contains(snap.Problems[0], "not visible") {
		t.Errorf("Problems = %v", snap.Problems)
	}
}

func TestObserveDistTagMoved(t *testing.T) {
	// Version exists, but latest moved on (e.g. rollback re-tagged).
	f := &fakeRegistry{latest: "1.2.0", versions: []string{"1.2.0", "1.3.0"}}
	m := newTestMonitor(t, f, DefaultThresholds())

	snap := m.Observe(context.Background())
	if snap.Health != HealthDegraded {
		t.Errorf("Health = %s, want degraded", snap.Health)
	}
}

func TestObserveDownloadFloor(t *testing.T) {
	f := &fakeRegistry{latest: "1.3.0", versions: []string{"1.3.0"}, downloads: 2}
	th := DefaultThresholds()
	th.MinDownloads = 10
	m := newTestMonitor(t, f, th)

	snap := m.Observe(context.Background())
	if snap.Health != HealthDegraded {
		t.Errorf("Health = %s, want degraded", snap.Health)
	}
	if len(snap.Problems) != 1 || !strings.Contains(snap.Problems[0], "below floor") {
		t.Errorf("Problems = %v", snap.Problems)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	f := &fakeRegistry{latest: "1.3.0", versions: []string{"1.3.0"}}
	m := newTestMonitor(t, f, DefaultThresholds())

	var count atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Snapshot, 1)
	go func() {
		done <- m.Run(ctx, 10*time.Millisecond, func(Snapshot) {
			if count.Add(1) >= 3 {
				cancel()
			}
		})
	}()

	select {
	case last := <-done:
		if last.Health != HealthOK {
			t.Errorf("final Health = %s", last.Health)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if count.Load() < 3 {
		t.Errorf("snapshots = %d, want >= 3", count.Load())
	}
}
