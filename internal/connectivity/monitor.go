// Package connectivity tracks whether the remote backend is reachable
// and feeds transitions into the store. Connectivity is probed, never
// assumed: the device radio being up says nothing about the API being
// reachable.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/store"
)

// Prober checks whether the backend is reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes the backend health endpoint.
type HTTPProber struct {
	client   *http.Client
	endpoint string
}

// NewHTTPProber creates a prober against baseURL's health endpoint.
func NewHTTPProber(baseURL string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client:   &http.Client{Timeout: timeout},
		endpoint: baseURL + "/health",
	}
}

// Probe issues a GET against the health endpoint. Any 2xx means online.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Monitor polls the prober and dispatches connectivity transitions. The
// store starts offline after hydration, so the first successful probe is
// what brings the app online.
type Monitor struct {
	st       *store.Store
	prober   Prober
	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a Monitor polling every interval.
func NewMonitor(st *store.Store, prober Prober, interval time.Duration) *Monitor {
	return &Monitor{
		st:       st,
		prober:   prober,
		interval: interval,
	}
}

// Start begins polling. The first probe runs immediately so startup does
// not wait a full interval to discover connectivity.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)

	logging.Info("Connectivity monitor started", map[string]interface{}{
		"interval_seconds": m.interval.Seconds(),
	})
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info("Connectivity monitor stopped", nil)
}

// CheckNow runs a probe outside the polling schedule, for pull-to-refresh
// style manual checks. It reports the probed state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	return m.check(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check probes once and dispatches SetOnline only on transitions.
func (m *Monitor) check(ctx context.Context) bool {
	err := m.prober.Probe(ctx)
	online := err == nil

	wasOnline := m.st.State().UI.Online
	if online == wasOnline {
		return online
	}

	if online {
		logging.Info("Backend reachable, going online", nil)
	} else {
		logging.Warn("Backend unreachable, going offline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if dispatchErr := m.st.Dispatch(store.SetOnline{Online: online}); dispatchErr != nil {
		logging.Error("Failed to dispatch connectivity change", dispatchErr, nil)
	}
	return online
}
