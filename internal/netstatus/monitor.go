package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

// CheckTimeout bounds a single check.
const CheckTimeout = 3 * time.Second

// Listener receives every status change. It runs on the monitor goroutine
// and must not block.
type Listener func(Status)

// Monitor polls a Provider and fans out transitions.
type Monitor struct {
	provider Provider
	interval time.Duration
	logger   logging.Logger

	mu        sync.Mutex
	current   Status
	known     bool
	nextID    int
	listeners map[int]Listener
}

func NewMonitor(p Provider, interval time.Duration, logger logging.Logger) *Monitor {
	return &Monitor{
		provider:  p,
		interval:  interval,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// AddListener registers l and returns a function that removes it.
func (m *Monitor) AddListener(l Listener) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Current returns the last observed status.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Poll runs one check and notifies listeners if the status changed. A check
// error counts as offline.
func (m *Monitor) Poll(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	st, err := m.provider.FetchStatus(ctx)
	cancel()
	if err != nil {
		m.logger.Debug(ctx, "connectivity check failed", "error", err)
		st = Status{}
	}

	m.mu.Lock()
	changed := !m.known || st != m.current
	prevMode := m.current.Mode()
	m.current = st
	m.known = true
	var ls []Listener
	if changed {
		ls = make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			ls = append(ls, l)
		}
	}
	m.mu.Unlock()

	if changed {
		if st.Mode() != prevMode {
			m.logger.Info(ctx, "switched mode", "mode", string(st.Mode()))
		}
		for _, l := range ls {
			l(st)
		}
	}
	return st
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}
