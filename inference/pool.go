package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// SessionFactory builds one fresh session for a pool.
type SessionFactory func() (*ModelSession, error)

type ModelSessionPool struct {
	name           string
	sessions       chan *ModelSession
	size           int
	factory        SessionFactory
	acquireTimeout time.Duration

	mu          sync.Mutex
	replenishMu sync.Mutex
	closed      bool
	total       int // live sessions, idle or checked out
	done        chan struct{}
	lastErrors  []error

	metrics *PoolMetrics
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	totalDiscarded  int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time copy of a pool's counters.
type PoolStats struct {
	Name            string        `json:"name"`
	PoolSize        int           `json:"pool_size"`
	Idle            int           `json:"sessions_idle"`
	InUse           int           `json:"sessions_in_use"`
	Total           int           `json:"sessions_total"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	TotalDiscarded  int64         `json:"total_discarded"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
	LastError       string        `json:"last_error,omitempty"`
}

func NewModelSessionPool(name string, size int, factory SessionFactory) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &ModelSessionPool{
		name:           name,
		sessions:       make(chan *ModelSession, size),
		size:           size,
		factory:        factory,
		acquireTimeout: AcquireTimeout,
		done:           make(chan struct{}),
		metrics:        &PoolMetrics{},
	}

	// Initialize sessions
	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize %s session %d: %w", name, i, err)
		}
		pool.sessions <- session
		pool.total++
	}

	go pool.healthCheck(HealthCheckPeriod)

	return pool, nil
}

func (p *ModelSessionPool) Name() string { return p.name }

func (p *ModelSessionPool) Acquire(ctx context.Context) (*ModelSession, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available %s session", p.name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session *ModelSession) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.total--
		session.Destroy()
		return
	}
	p.offer(session)
}

// offer returns a session to the idle channel without blocking. A full
// channel means the session is surplus and it is destroyed. p.mu must be held.
func (p *ModelSessionPool) offer(session *ModelSession) bool {
	select {
	case p.sessions <- session:
		return true
	default:
		p.total--
		session.Destroy()
		return false
	}
}

// Discard destroys a session that failed mid-run and rebuilds a replacement
// in the background.
func (p *ModelSessionPool) Discard(session *ModelSession) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalDiscarded++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	p.total--
	p.mu.Unlock()

	session.Destroy()
	go p.replenish()
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	// Destroy all sessions
	for session := range p.sessions {
		p.total--
		session.Destroy()
	}
}

func (p *ModelSessionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *ModelSessionPool) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish recreates sessions that were discarded. Slots are reserved in
// total before the factory runs so the pool never grows past its size.
func (p *ModelSessionPool) replenish() {
	p.replenishMu.Lock()
	defer p.replenishMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	missing := p.size - p.total
	if missing <= 0 {
		p.mu.Unlock()
		return
	}
	p.total += missing
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.total--
			p.mu.Unlock()
			session.Destroy()
			continue
		}
		added := p.offer(session)
		p.mu.Unlock()
		if added {
			slog.Info("replenished model session", slog.String("pool", p.name))
		}
	}
}

func (p *ModelSessionPool) recordError(err error) {
	slog.Error("failed to recreate model session", slog.String("pool", p.name), slog.Any("error", err))

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *ModelSessionPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	stats := PoolStats{
		Name:            p.name,
		PoolSize:        p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		TotalDiscarded:  p.metrics.totalDiscarded,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
	}
	p.metrics.mu.RUnlock()

	p.mu.Lock()
	stats.Idle = len(p.sessions)
	stats.Total = p.total
	if n := len(p.lastErrors); n > 0 {
		stats.LastError = p.lastErrors[n-1].Error()
	}
	p.mu.Unlock()

	return stats
}
