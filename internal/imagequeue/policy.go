package imagequeue

import (
	"fmt"
	"time"
)

// Policy bounds retries and decides when a claim is considered abandoned.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	StaleAfter  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  10 * time.Minute,
		StaleAfter:  10 * time.Minute,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	case p.BaseBackoff <= 0:
		return fmt.Errorf("base backoff must be positive, got %s", p.BaseBackoff)
	case p.MaxBackoff < p.BaseBackoff:
		return fmt.Errorf("max backoff %s is shorter than base backoff %s", p.MaxBackoff, p.BaseBackoff)
	case p.StaleAfter <= 0:
		return fmt.Errorf("stale timeout must be positive, got %s", p.StaleAfter)
	}
	return nil
}

// Backoff is the delay before retrying after the given (1-based) attempt
// failed: BaseBackoff doubled per attempt, capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		if d >= p.MaxBackoff/2 {
			return p.MaxBackoff
		}
		d *= 2
	}
	return min(d, p.MaxBackoff)
}
