package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/babel/internal/core"
)

// limiterPool holds one token bucket per connection.
type limiterPool struct {
	mu    sync.Mutex
	m     map[core.SessionID]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &limiterPool{m: make(map[core.SessionID]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(sid core.SessionID) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[sid]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[sid] = l
	return l
}

func (p *limiterPool) Allow(sid core.SessionID) bool {
	return p.get(sid).Allow()
}

func (p *limiterPool) Remove(sid core.SessionID) {
	p.mu.Lock()
	delete(p.m, sid)
	p.mu.Unlock()
}
