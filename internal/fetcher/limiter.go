package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// domainLimiter keeps one token bucket per host.
type domainLimiter struct {
	rps      float64
	limiters sync.Map // host -> *rate.Limiter
}

func newDomainLimiter(rps float64) *domainLimiter {
	return &domainLimiter{rps: rps}
}

// wait blocks until host may be hit again. crawlDelay, when slower than the
// configured rate, wins for hosts seen for the first time.
func (d *domainLimiter) wait(ctx context.Context, host string, crawlDelay time.Duration) error {
	if d.rps <= 0 {
		return nil
	}
	return d.get(host, crawlDelay).Wait(ctx)
}

func (d *domainLimiter) get(host string, crawlDelay time.Duration) *rate.Limiter {
	if l, ok := d.limiters.Load(host); ok {
		return l.(*rate.Limiter)
	}
	rps := d.rps
	if crawlDelay > 0 {
		if fromDelay := 1 / crawlDelay.Seconds(); fromDelay < rps {
			rps = fromDelay
		}
	}
	actual, _ := d.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(rps), 1))
	return actual.(*rate.Limiter)
}
