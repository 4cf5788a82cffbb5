package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer caps concurrent page loads and spaces them with a jittered delay
type Pacer struct {
	maxInFlight int
	baseDelay   time.Duration
	jitter      time.Duration

	slots       chan struct{}
	mu          sync.Mutex
	lastRequest time.Time
}

// NewPacer creates a pacer. maxInFlight below 1 is treated as 1.
func NewPacer(maxInFlight int, baseDelay, jitter time.Duration) *Pacer {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Pacer{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
		slots:       make(chan struct{}, maxInFlight),
	}
}

// Acquire waits for a free slot and the pacing delay. Release must follow a nil return.
func (p *Pacer) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	delay := p.baseDelay
	if p.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	wait := delay - time.Since(p.lastRequest)
	p.lastRequest = time.Now().Add(max(wait, 0))
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		<-p.slots
		return ctx.Err()
	}
}

// Release frees the slot taken by Acquire
func (p *Pacer) Release() {
	<-p.slots
}

// InFlight returns the number of held slots
func (p *Pacer) InFlight() int {
	return len(p.slots)
}
