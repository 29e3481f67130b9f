// Package urlcheck probes URL reachability on a bounded worker pool with a
// per-run cache, so checking N distinct URLs costs one probe each and never
// serializes behind the synchronous validation pass.
package urlcheck

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"coursecheck/internal/config"
	"coursecheck/internal/infrastructure"
	"coursecheck/pkg/contracts/domain"
)

// Request names one URL check on behalf of a specific row and field.
type Request struct {
	RowIndex int
	Field    domain.Field
	URL      string
}

// Result pairs a request with its reachability outcome. Requests for rows
// that shared a normalized URL each get their own Result from a single probe.
type Result struct {
	Request
	Reachability domain.ReachabilityResult
}

// Checker holds the probe policy. One Checker serves many runs; per-run
// state lives in the Session it opens.
type Checker struct {
	cfg     config.URLConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *infrastructure.RunMetrics
}

// New creates a checker from configuration. metrics may be nil.
func New(cfg config.URLConfig, logger *slog.Logger, metrics *infrastructure.RunMetrics) *Checker {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Checker{
		cfg: cfg,
		client: &http.Client{
			// Per-probe deadlines are applied per attempt via request
			// contexts, not here.
			Timeout: 0,
		},
		limiter: rate.NewLimiter(limit, cfg.Workers),
		logger:  logger.With(slog.String("component", "urlcheck")),
		metrics: metrics,
	}
}

// Session is the per-run probing state: the work queue, the worker pool and
// the shared cache. Submissions are deduplicated by normalized URL; a cache
// hit short-circuits without a probe.
type Session struct {
	checker *Checker
	cache   *Cache
	ctx     context.Context

	mu      sync.Mutex
	queue   []string             // normalized URLs awaiting a probe
	waiters map[string][]Request // normalized URL -> requests awaiting its result
	closed  bool
	cond    *sync.Cond

	outstanding sync.WaitGroup
	results     chan Result
	group       *errgroup.Group
}

// Open starts a worker pool bound to ctx and returns the session. Cancelling
// ctx stops dispatching; probes already in flight are abandoned, not awaited.
func (c *Checker) Open(ctx context.Context, cache *Cache) *Session {
	s := &Session{
		checker: c,
		cache:   cache,
		ctx:     ctx,
		waiters: make(map[string][]Request),
		results: make(chan Result, 64),
	}
	s.cond = sync.NewCond(&s.mu)

	s.group, _ = errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		s.group.Go(func() error {
			s.worker()
			return nil
		})
	}

	// Wake blocked workers when the run is cancelled.
	go func() {
		<-ctx.Done()
		s.cond.Broadcast()
	}()

	// Close the results stream once submissions stopped and the queue
	// drained. On cancellation, still-queued probes are abandoned and
	// accounted for here so the stream terminates.
	go func() {
		s.group.Wait()
		s.mu.Lock()
		for range s.queue {
			s.outstanding.Done()
		}
		s.queue = nil
		s.mu.Unlock()
		s.outstanding.Wait()
		close(s.results)
	}()

	return s
}

// Submit schedules a reachability check. It never blocks on the network:
// cached URLs resolve immediately, everything else queues for the pool.
// Submissions after cancellation are dropped.
func (s *Session) Submit(req Request) {
	if s.ctx.Err() != nil {
		return
	}

	norm := Normalize(req.URL)

	if cached, ok := s.cache.Get(norm); ok {
		if s.checker.metrics != nil {
			s.checker.metrics.URLCacheHits.Add(s.ctx, 1)
		}
		s.deliver(Result{Request: req, Reachability: cached})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, inflight := s.waiters[norm]; inflight {
		s.waiters[norm] = append(s.waiters[norm], req)
		return
	}
	s.waiters[norm] = []Request{req}
	s.queue = append(s.queue, norm)
	s.outstanding.Add(1)
	s.cond.Signal()
}

// Close marks the end of submissions. Results() drains and then closes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Results streams probe outcomes. The channel closes after Close() once all
// outstanding probes resolved, or early on cancellation.
func (s *Session) Results() <-chan Result {
	return s.results
}

// deliver sends one result unless the run was cancelled.
func (s *Session) deliver(r Result) {
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
}

// worker pops normalized URLs off the queue and probes them.
func (s *Session) worker() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed && s.ctx.Err() == nil {
			s.cond.Wait()
		}
		if s.ctx.Err() != nil || (len(s.queue) == 0 && s.closed) {
			s.mu.Unlock()
			return
		}
		norm := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		result := s.checker.probe(s.ctx, norm)
		s.cache.Put(norm, result)

		s.mu.Lock()
		reqs := s.waiters[norm]
		delete(s.waiters, norm)
		s.mu.Unlock()

		if s.ctx.Err() == nil {
			for _, req := range reqs {
				s.deliver(Result{Request: req, Reachability: result})
			}
		}
		s.outstanding.Done()
	}
}

// probe issues the network check for one normalized URL: a HEAD request with
// a bounded per-attempt timeout, retried once on transient network failure.
// The retry gets a fresh timeout budget, not the remainder of the first.
func (c *Checker) probe(ctx context.Context, normURL string) domain.ReachabilityResult {
	result := domain.ReachabilityResult{URL: normURL, CheckedAt: time.Now()}

	attempts := c.cfg.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			result.Reason = "run cancelled"
			return result
		}

		status, err := c.attempt(ctx, normURL)
		if c.metrics != nil {
			c.metrics.URLProbes.Add(ctx, 1)
		}

		if err == nil {
			result.StatusCode = status
			result.Reachable = status < 400
			if !result.Reachable {
				result.Reason = http.StatusText(status)
			}
			return result
		}

		if !isTransient(err) || attempt == attempts-1 {
			result.Reason = err.Error()
			c.logger.Debug("url probe failed",
				slog.String("url", normURL),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			return result
		}

		c.logger.Debug("retrying url probe after transient failure",
			slog.String("url", normURL),
			slog.String("error", err.Error()))
	}

	return result
}

// attempt performs a single HEAD request within the configured timeout.
func (c *Checker) attempt(ctx context.Context, rawURL string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// isTransient reports whether a probe failure is worth one retry: timeouts
// and connection-level failures qualify, anything else does not.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Normalize canonicalizes a URL for cache keying: scheme defaults to https,
// scheme and host are lowercased, default ports and fragments are dropped.
// Path, query and trailing slashes are preserved; they can name different
// resources.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case "https":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	return u.String()
}
