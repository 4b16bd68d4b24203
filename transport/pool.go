package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// ConnPool owns every connection opened to one host and hands requests the
// least busy among them (spec.md §4.2 "Connection pool"). A dead pool
// reconnects on its own schedule in the background until Close is called,
// unless a dial failure turns out to be critical (spec.md §4.4), in which
// case the pool gives up reconnecting and surfaces the error instead.
type ConnPool struct {
	addr string
	cfg  ConnConfig

	mu    sync.Mutex
	conns []*Conn

	reconnPolicy ReconnectionPolicy
	schedule     ReconnectionSchedule
	onCritical   func(error)

	criticalMu  sync.Mutex
	criticalErr error

	closed    chan struct{}
	closeOnce sync.Once
}

// PoolSize is the number of connections kept open per host (spec.md §4.2).
const PoolSize = 4

// NewConnPool dials PoolSize connections to addr. It returns an error
// wrapping the last dial error only if every connection attempt failed; a
// partially filled pool is still usable and the remaining slots are filled
// by the background reconnect loop. onCritical, if non-nil, is invoked at
// most once, the first time a dial failure is classified critical by
// IsCritical (spec.md §4.4): synchronously from NewConnPool when every
// initial dial failed and the last failure is critical, otherwise from the
// reconnect loop's goroutine — the pool does not schedule any further
// reconnection attempt afterwards.
func NewConnPool(ctx context.Context, addr string, cfg ConnConfig, reconnPolicy ReconnectionPolicy, onCritical func(error)) (*ConnPool, error) {
	if reconnPolicy == nil {
		reconnPolicy = ExponentialReconnectionPolicy{BaseDelay: time.Second, MaxDelay: 2 * time.Minute}
	}

	p := &ConnPool{
		addr:         addr,
		cfg:          cfg,
		reconnPolicy: reconnPolicy,
		schedule:     reconnPolicy.NewSchedule(),
		onCritical:   onCritical,
		closed:       make(chan struct{}),
	}

	var lastErr error
	for i := 0; i < PoolSize; i++ {
		conn, err := OpenConn(ctx, addr, cfg)
		if err != nil {
			lastErr = err
			continue
		}
		cfg.Metrics.ConnOpened()
		p.conns = append(p.conns, conn)
	}

	if len(p.conns) == 0 {
		if IsCritical(lastErr) {
			p.setCritical(lastErr)
			return nil, fmt.Errorf("opening connection pool to %s: %w", addr, lastErr)
		}
		p.startReconnectLoop()
		return nil, fmt.Errorf("opening connection pool to %s: %w", addr, lastErr)
	}

	p.startReconnectLoop()
	return p, nil
}

func (p *ConnPool) setCritical(err error) {
	p.criticalMu.Lock()
	if p.criticalErr == nil {
		p.criticalErr = err
	}
	p.criticalMu.Unlock()
	if p.onCritical != nil {
		p.onCritical(err)
	}
}

// CriticalErr returns the dial error that made the reconnect loop give up,
// or nil if none has occurred.
func (p *ConnPool) CriticalErr() error {
	p.criticalMu.Lock()
	defer p.criticalMu.Unlock()
	return p.criticalErr
}

// startReconnectLoop periodically tops the pool back up to PoolSize,
// following the reconnection schedule whenever the pool is below capacity
// (spec.md §4.4 "Reconnection policy"). It exits once Close is called, or
// once a dial error is classified critical (bad credentials, TLS
// verification failure, protocol mismatch): those cannot be resolved by
// further reconnection, so retrying them forever just recreates the
// infinite-reconnect-loop pathology spec.md §9 warns about under a
// different trigger. The pool surfaces the error via onCritical instead of
// scheduling another attempt.
func (p *ConnPool) startReconnectLoop() {
	go func() {
		for {
			delay := p.schedule.NextDelay()
			select {
			case <-time.After(delay):
			case <-p.closed:
				return
			}

			if p.Len() >= PoolSize {
				p.schedule.Reset()
				continue
			}

			conn, err := OpenConn(context.Background(), p.addr, p.cfg)
			if err != nil {
				log.Printf("transport: reconnecting to %s failed: %v", p.addr, err)
				if IsCritical(err) {
					log.Printf("transport: %s: critical error, giving up reconnection: %v", p.addr, err)
					p.setCritical(err)
					return
				}
				continue
			}

			p.cfg.Metrics.ConnOpened()
			p.mu.Lock()
			p.conns = append(p.conns, conn)
			p.mu.Unlock()
			p.schedule.Reset()
		}
	}()
}

// Len reports how many live connections the pool currently holds.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	return len(p.conns)
}

func (p *ConnPool) pruneLocked() {
	alive := p.conns[:0]
	for _, c := range p.conns {
		if !c.IsClosed() {
			alive = append(alive, c)
			continue
		}
		p.cfg.Metrics.ConnClosed()
	}
	p.conns = alive
}

// LeastBusyConn returns the live connection with the fewest in-flight
// requests (spec.md §4.2 "routes each request to its least-busy
// connection").
func (p *ConnPool) LeastBusyConn() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()

	if len(p.conns) == 0 {
		return nil, fmt.Errorf("no live connections to %s", p.addr)
	}

	best := p.conns[0]
	bestLoad := best.InFlight()
	for _, c := range p.conns[1:] {
		if load := c.InFlight(); load < bestLoad {
			best, bestLoad = c, load
		}
	}
	return best, nil
}

// Conn returns the connection a token-aware request should use. This pool
// implementation does not track shard ownership per connection, so it
// falls back to least-busy selection (spec.md §1 Non-goals: shard-aware
// per-connection routing is out of scope for this driver core).
func (p *ConnPool) Conn(_ Token) (*Conn, error) {
	return p.LeastBusyConn()
}

// Close shuts down every connection and stops the reconnect loop.
func (p *ConnPool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Close()
		p.cfg.Metrics.ConnClosed()
	}
	p.conns = nil
}
