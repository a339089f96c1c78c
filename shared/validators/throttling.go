package validators

import (
	"sync"

	"github.com/neyho/eywa-go/shared"
	"golang.org/x/time/rate"
)

// Throttling limits the rate of inbound requests and notifications handed to
// handlers. Responses are never throttled, they belong to calls the robot made.
type Throttling struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewThrottling creates a throttling validator allowing rps frames per second
// with a burst of the same size. rps <= 0 disables it.
func NewThrottling(rps float64) *Throttling {
	t := &Throttling{}
	t.SetRate(rps)
	return t
}

// SetRate replaces the limit, for example after a configuration reload.
func (t *Throttling) SetRate(rps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rps <= 0 {
		t.limiter = nil
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Validate implements the MessageValidator interface
func (t *Throttling) Validate(msg *shared.Message) error {
	if msg.Kind() == shared.KindResponse {
		return nil
	}
	t.mu.RLock()
	limiter := t.limiter
	t.mu.RUnlock()

	if limiter != nil && !limiter.Allow() {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorThrottled,
			Message: "RPS throttling limit exceeded",
		}
	}
	return nil
}
