package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Class names a category of external call sharing one minimum period.
type Class string

// Pacer enforces a minimum spacing between call starts per class. It relies
// on the monotonic clock reading carried by time.Time, so wall-clock
// adjustments cannot shrink the effective spacing.
type Pacer struct {
	mu      sync.Mutex
	periods map[Class]time.Duration
	last    map[Class]time.Time
	now     func() time.Time
}

func NewPacer(periods map[Class]time.Duration) (*Pacer, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("pacer needs at least one call class")
	}

	copied := make(map[Class]time.Duration, len(periods))
	for class, period := range periods {
		if period < 0 {
			return nil, fmt.Errorf("period for class %q must be >= 0", class)
		}
		copied[class] = period
	}

	return &Pacer{
		periods: copied,
		last:    make(map[Class]time.Time, len(copied)),
		now:     time.Now,
	}, nil
}

// Wait blocks the calling goroutine until a call of the given class may
// start, then records the call start. Returns early on context cancellation
// without consuming the slot.
func (p *Pacer) Wait(ctx context.Context, class Class) error {
	period, ok := p.periodFor(class)
	if !ok {
		return fmt.Errorf("unknown call class %q", class)
	}

	for {
		p.mu.Lock()
		now := p.now()
		wait := time.Duration(0)
		if last, seen := p.last[class]; seen {
			wait = last.Add(period).Sub(now)
		}
		if wait <= 0 {
			p.last[class] = now
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Pacer) periodFor(class Class) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	period, ok := p.periods[class]
	return period, ok
}
