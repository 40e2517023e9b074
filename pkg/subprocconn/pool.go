package subprocconn

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Addr        string
	Capacity    int
	ConnConfig  Config
	DialTimeout time.Duration
}

// Pool is a fixed-capacity pool of Connections to a single local
// endpoint. Capacity never grows past construction. Waiters are
// served FIFO via a condition variable signaled once per release —
// Signal, not Broadcast, to avoid waking every waiter for one slot.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	addr        string
	capacity    int
	connCfg     Config
	dialTimeout time.Duration

	idle    []*Connection
	active  map[*Connection]struct{}
	total   int
	waiting int
	closed  bool
}

// NewPool constructs a Pool. No connections are dialed eagerly.
func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		addr:        cfg.Addr,
		capacity:    cfg.Capacity,
		connCfg:     cfg.ConnConfig,
		dialTimeout: cfg.DialTimeout,
		active:      make(map[*Connection]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire returns an idle healthy connection, lazily dials a new one
// if under capacity, or waits FIFO for a release. Honors ctx
// cancellation and deadline; a cancelled wait does not count as a
// lease.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("subprocconn: pool closed")
		}

		for len(p.idle) > 0 {
			c := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if !c.IsHealthy() {
				_ = c.Close()
				p.total--
				continue
			}
			p.active[c] = struct{}{}
			p.mu.Unlock()
			return c, nil
		}

		if p.total < p.capacity {
			p.total++
			p.mu.Unlock()

			dialCtx := ctx
			var cancel context.CancelFunc
			if p.dialTimeout > 0 {
				dialCtx, cancel = context.WithTimeout(ctx, p.dialTimeout)
			}
			c, err := Dial(dialCtx, p.addr, p.connCfg)
			if cancel != nil {
				cancel()
			}
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("subprocconn: acquire: %w", err)
			}

			p.mu.Lock()
			p.active[c] = struct{}{}
			p.mu.Unlock()
			return c, nil
		}

		p.waiting++
		stopWatch := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.cond.Broadcast()
			case <-stopWatch:
			}
		}()
		// Wait for Signal from Release, or Broadcast from Shutdown or
		// the ctx.Done() watcher above (covers both cancellation and
		// deadline, since a deadline context's Done() channel closes
		// on expiry too); mu is released while waiting.
		p.cond.Wait()
		close(stopWatch)
		p.waiting--
		// loop back to the top to retry
	}
}

// Release returns a connection to the pool. Unhealthy connections are
// destroyed rather than reused.
func (p *Pool) Release(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, c)

	if p.closed || !c.IsHealthy() {
		_ = c.Close()
		p.total--
		p.cond.Signal()
		return
	}

	p.idle = append(p.idle, c)
	p.cond.Signal()
}

// Stats reports current pool occupancy.
type Stats struct {
	Active  int
	Idle    int
	Total   int
	Waiting int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:  len(p.active),
		Idle:    len(p.idle),
		Total:   p.total,
		Waiting: p.waiting,
	}
}

// Shutdown stops granting new leases, destroys idle connections, and
// permits in-flight leases to complete (callers still call Release,
// which will destroy them since closed is now true).
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, c := range p.idle {
		_ = c.Close()
		p.total--
	}
	p.idle = nil
	p.cond.Broadcast()
	p.mu.Unlock()
}
