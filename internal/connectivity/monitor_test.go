package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/store"
)

// fakeProber returns a scripted sequence of probe results.
type fakeProber struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (f *fakeProber) Probe(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result error
	if f.calls < len(f.results) {
		result = f.results[f.calls]
	} else if len(f.results) > 0 {
		result = f.results[len(f.results)-1]
	}
	f.calls++
	return result
}

func setupMonitorStore(t *testing.T) *store.Store {
	t.Helper()

	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })

	return store.New(repo)
}

// TestCheckNowDispatchesTransitions tests that probe results move the
// store online and offline, but only on actual transitions.
func TestCheckNowDispatchesTransitions(t *testing.T) {
	st := setupMonitorStore(t)

	var transitions []bool
	st.Subscribe(func(cmd store.Command) {
		if c, ok := cmd.(store.SetOnline); ok {
			transitions = append(transitions, c.Online)
		}
	})

	prober := &fakeProber{results: []error{
		nil,                          // online
		nil,                          // still online, no dispatch
		fmt.Errorf("probe timeout"),  // offline
		fmt.Errorf("probe timeout"),  // still offline, no dispatch
		nil,                          // back online
	}}
	m := NewMonitor(st, prober, time.Hour)

	expected := []bool{true, false, true}
	got := []bool{
		m.CheckNow(context.Background()),
		m.CheckNow(context.Background()),
		m.CheckNow(context.Background()),
		m.CheckNow(context.Background()),
		m.CheckNow(context.Background()),
	}

	if got[0] != true || got[2] != false || got[4] != true {
		t.Errorf("Unexpected probe results: %v", got)
	}
	if len(transitions) != len(expected) {
		t.Fatalf("Expected %d transitions, got %d: %v", len(expected), len(transitions), transitions)
	}
	for i, want := range expected {
		if transitions[i] != want {
			t.Errorf("Transition %d: expected %v, got %v", i, want, transitions[i])
		}
	}
}

// TestStartProbesImmediately tests that the loop does not wait a full
// interval before the first probe.
func TestStartProbesImmediately(t *testing.T) {
	st := setupMonitorStore(t)
	prober := &fakeProber{results: []error{nil}}
	m := NewMonitor(st, prober, time.Hour)

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for !st.State().UI.Online {
		select {
		case <-deadline:
			t.Fatal("Store never went online after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestStartIsIdempotent tests that a second Start does not spawn a
// second polling loop.
func TestStartIsIdempotent(t *testing.T) {
	st := setupMonitorStore(t)
	prober := &fakeProber{results: []error{fmt.Errorf("down")}}
	m := NewMonitor(st, prober, time.Hour)

	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()

	// Stop would deadlock or panic if two loops shared the WaitGroup
}

// TestHTTPProber tests the health-endpoint prober against a live server.
func TestHTTPProber(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := NewHTTPProber(server.URL, time.Second)

	if err := prober.Probe(context.Background()); err != nil {
		t.Errorf("Expected healthy probe to succeed, got %v", err)
	}

	healthy = false
	if err := prober.Probe(context.Background()); err == nil {
		t.Error("Expected unhealthy probe to fail")
	}

	server.Close()
	if err := prober.Probe(context.Background()); err == nil {
		t.Error("Expected probe against closed server to fail")
	}
}
