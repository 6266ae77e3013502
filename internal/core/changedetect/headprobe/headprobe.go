// Package headprobe runs the concurrent HEAD phase (C4): for every
// resource, issue an HTTP HEAD with redirects followed, subject to the
// host scheduler and retry policy, producing one ProbeOutcome per
// resource.
package headprobe

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/hostsched"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/resource"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/retrypolicy"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"

	"github.com/rs/zerolog"
)

// Config tunes the HEAD phase. Zero values fall back to spec.md §4.4 defaults.
type Config struct {
	UserAgent       string
	SockConnectWait time.Duration // default 30s
	TotalWait       time.Duration // default 5min
	Concurrency     int           // worker pool size, default 32

	// Transport overrides the client's RoundTripper, e.g. fixture.SavingTransport
	// or fixture.ReplayTransport when save_downloaded/use_saved is configured.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.SockConnectWait <= 0 {
		c.SockConnectWait = 30 * time.Second
	}
	if c.TotalWait <= 0 {
		c.TotalWait = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 32
	}
	return c
}

// Item pairs a resource with the host it targets, satisfying hostsched.Item.
type Item struct {
	Resource domain.ResourceRecord
}

func (i Item) Host() string { return resource.Netloc(i.Resource.URL) }

// Prober runs HEAD requests for a batch of resources.
type Prober struct {
	cfg     Config
	client  *http.Client
	sched   *hostsched.Scheduler
	retry   retrypolicy.Config
	log     zerolog.Logger
}

// New builds a Prober. sched must already be sized for the resources'
// distinct hosts (see resource.Table.DistinctNetlocs).
func New(cfg Config, sched *hostsched.Scheduler, retry retrypolicy.Config, log zerolog.Logger) *Prober {
	cfg = cfg.withDefaults()
	return &Prober{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.TotalWait,
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return nil // follow redirects, matching aiohttp's allow_redirects=True
			},
		},
		sched: sched,
		retry: retry,
		log:   log,
	}
}

// Run issues HEAD requests for every resource in items, honoring the
// host scheduler's fairness transform, and returns one outcome per
// resource ID. It blocks until every resource has an outcome or ctx is
// canceled.
func (p *Prober) Run(ctx context.Context, resources []domain.ResourceRecord) map[string]domain.ProbeOutcome {
	items := make([]Item, 0, len(resources))
	for _, r := range resources {
		items = append(items, Item{Resource: r})
	}
	ordered := hostsched.ListDistribute(items)

	out := make(map[string]domain.ProbeOutcome, len(ordered))
	var mu sync.Mutex

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, item := range ordered {
		select {
		case <-ctx.Done():
			wg.Wait()
			return out
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.probeOne(ctx, it.Resource)

			mu.Lock()
			out[it.Resource.ResourceID] = outcome
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return out
}

// probeOne runs the full per-resource pipeline: acquire the host gate,
// issue the HEAD with bounded retries, classify the result.
func (p *Prober) probeOne(ctx context.Context, r domain.ResourceRecord) domain.ProbeOutcome {
	host := resource.Netloc(r.URL)

	release, err := p.sched.Acquire(ctx, host)
	if err != nil {
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}
	}
	defer release()

	maxAttempts := p.retry.MaxAttemptCount()
	var lastOutcome domain.ProbeOutcome

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, retryable, isRateLimited := p.headOnce(ctx, r)
		lastOutcome = outcome
		if !retryable || attempt == maxAttempts {
			return outcome
		}

		wait := p.retry.Wait(attempt, isRateLimited)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return outcome
		}
	}
	return lastOutcome
}

// headOnce issues a single HEAD request and classifies the result.
func (p *Prober) headOnce(ctx context.Context, r domain.ResourceRecord) (outcome domain.ProbeOutcome, retryable bool, isRateLimited bool) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.TotalWait)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, r.URL, nil)
	if err != nil {
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}, false, false
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("url", r.URL).Msg("head transport failure")
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}, true, false
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status == http.StatusOK {
		o := domain.ProbeOutcome{Status: domain.Status(status)}
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				o.Size, o.HasSize = n, true
			}
		}
		o.LastModified = resp.Header.Get("Last-Modified")
		if etag := resp.Header.Get("Etag"); etag != "" {
			o.Digest, o.HasDigest = etag, true
		}
		return o, false, false
	}

	ok := retrypolicy.Classify(status)
	return domain.ProbeOutcome{Status: domain.Status(status)}, ok, status == http.StatusTooManyRequests
}
