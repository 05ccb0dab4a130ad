package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// retryManager schedules re-visits of failed URLs with capped exponential
// backoff. One manager serves one search run; Stop cancels pending timers.
type retryManager struct {
	collector   *colly.Collector
	maxRetries  int
	backoff     time.Duration
	backoffMax  time.Duration
	metrics     *Metrics
	ctx         context.Context
	cancelWatch func() bool

	mu           sync.Mutex
	cond         *sync.Cond
	attempts     map[string]int
	timers       map[string]*time.Timer
	pending      int
	totalRetries int
	stopped      bool
}

type retryConfig struct {
	MaxRetries int
	Backoff    time.Duration
	BackoffMax time.Duration
}

func newRetryManager(collector *colly.Collector, cfg retryConfig, metrics *Metrics) *retryManager {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	rm := &retryManager{
		collector:  collector,
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		backoffMax: cfg.BackoffMax,
		metrics:    metrics,
		attempts:   make(map[string]int),
		timers:     make(map[string]*time.Timer),
		ctx:        context.Background(),
	}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

// Schedule queues a retry for url. Returns false when retries are exhausted,
// the manager is stopped, or the context is done.
func (rm *retryManager) Schedule(url string) bool {
	if rm.maxRetries == 0 || url == "" {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.maxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.delayFor(attempt)
	if timer, ok := rm.timers[url]; ok && timer.Stop() {
		rm.pending--
	}
	rm.pending++
	rm.timers[url] = time.AfterFunc(delay, func() {
		rm.fire(url)
	})
	return true
}

func (rm *retryManager) delayFor(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := rm.backoff * time.Duration(1<<(attempt-1))
	if rm.backoffMax > 0 && delay > rm.backoffMax {
		delay = rm.backoffMax
	}
	return delay
}

func (rm *retryManager) fire(url string) {
	defer rm.finish()

	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	delete(rm.timers, url)
	rm.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := rm.collector.Visit(url); err != nil {
		slog.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
	}
}

func (rm *retryManager) finish() {
	rm.mu.Lock()
	rm.pending--
	rm.cond.Broadcast()
	rm.mu.Unlock()
}

// Drain blocks until every pending retry has fired and reports whether any
// were pending. The visits the retries queued are the caller's to wait on;
// a retried fetch can fail and schedule again, so callers drain in a loop.
func (rm *retryManager) Drain() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	waited := rm.pending > 0
	for rm.pending > 0 {
		rm.cond.Wait()
	}
	return waited
}

// Stop cancels all pending retry timers.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}
	rm.stopped = true
	if rm.cancelWatch != nil {
		rm.cancelWatch()
		rm.cancelWatch = nil
	}
	for url, timer := range rm.timers {
		if timer.Stop() {
			rm.pending--
		}
		delete(rm.timers, url)
	}
	rm.cond.Broadcast()
}

// TotalRetries returns the number of retries scheduled so far.
func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

// SetContext binds the manager to a run context. Cancellation stops every
// pending retry so Drain never outlives the run.
func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if rm.cancelWatch != nil {
		rm.cancelWatch()
	}
	rm.ctx = ctx
	rm.cancelWatch = context.AfterFunc(ctx, rm.Stop)
}
