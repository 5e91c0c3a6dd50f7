package state

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPaceInterval spaces announcements while any are in flight.
const DefaultPaceInterval = 200 * time.Millisecond

// Pacer raises a wake signal every interval for as long as pending reports
// outstanding work. The goroutine exists only while needed: it exits when
// nothing is pending and is restarted by the next Kick.
//
// The running flag shares the lock that guards the table, so a Kick racing
// with the goroutine's final check can never leave work unpaced.
type Pacer struct {
	lock     sync.Locker
	clock    clock.Clock
	interval time.Duration
	pending  func() bool
	wake     func()

	running bool
	wg      sync.WaitGroup
}

// NewPacer creates a pacer. lock must be the lock guarding the state pending
// reads; wake must not block.
func NewPacer(lock sync.Locker, clk clock.Clock, interval time.Duration, pending func() bool, wake func()) *Pacer {
	if interval <= 0 {
		interval = DefaultPaceInterval
	}
	return &Pacer{
		lock:     lock,
		clock:    clk,
		interval: interval,
		pending:  pending,
		wake:     wake,
	}
}

// Kick starts the pacing goroutine if it is not running. The caller holds
// lock.
func (p *Pacer) Kick(ctx context.Context) {
	if p.running || ctx.Err() != nil {
		return
	}
	p.running = true
	p.wg.Add(1)
	go p.run(ctx)
}

// Running reports whether the goroutine is alive. The caller holds lock.
func (p *Pacer) Running() bool {
	return p.running
}

// Wait blocks until the goroutine has exited. Cancel the context passed to
// Kick first.
func (p *Pacer) Wait() {
	p.wg.Wait()
}

func (p *Pacer) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		p.lock.Lock()
		if !p.pending() || ctx.Err() != nil {
			p.running = false
			p.lock.Unlock()
			return
		}
		p.lock.Unlock()

		p.wake()

		timer := p.clock.Timer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
