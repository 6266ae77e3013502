// Package getprobe runs the concurrent GET+hash phase (C5): streaming
// download, MD5 content digesting, and the XLSX format-aware digest
// variant.
package getprobe

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/hostsched"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/resource"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/retrypolicy"
	pstrings "github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/strings"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"

	"github.com/rs/zerolog"
)

// Config tunes the GET phase. Zero values fall back to spec.md §4.5/§5 defaults.
type Config struct {
	UserAgent   string
	TotalWait   time.Duration // default 60min
	Concurrency int           // worker pool size, default 16 (body streaming is heavier than HEAD)
	URLIgnore   string        // substring that disables the xlsx special case when present

	// Transport overrides the client's RoundTripper, e.g. fixture.SavingTransport
	// or fixture.ReplayTransport when save_downloaded/use_saved is configured.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.TotalWait <= 0 {
		c.TotalWait = 60 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 16
	}
	return c
}

// Item pairs a resource with the host it targets, satisfying hostsched.Item.
type Item struct {
	Resource domain.ResourceRecord
}

func (i Item) Host() string { return resource.Netloc(i.Resource.URL) }

// Prober runs GET+hash requests for a batch of resources.
type Prober struct {
	cfg    Config
	client *http.Client
	sched  *hostsched.Scheduler
	retry  retrypolicy.Config
	log    zerolog.Logger
}

// New builds a Prober.
func New(cfg Config, sched *hostsched.Scheduler, retry retrypolicy.Config, log zerolog.Logger) *Prober {
	cfg = cfg.withDefaults()
	return &Prober{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.TotalWait,
			Transport: cfg.Transport,
		},
		sched: sched,
		retry: retry,
		log:   log,
	}
}

// Run issues GET requests for every resource in the phase-2 worklist and
// returns one outcome per resource ID.
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
		outcome, retryable, isRateLimited := p.getOnce(ctx, r)
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

func (p *Prober) getOnce(ctx context.Context, r domain.ResourceRecord) (outcome domain.ProbeOutcome, retryable bool, isRateLimited bool) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.TotalWait)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.URL, nil)
	if err != nil {
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}, false, false
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("url", r.URL).Msg("get transport failure")
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}, true, false
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status != http.StatusOK {
		ok := retrypolicy.Classify(status)
		return domain.ProbeOutcome{Status: domain.Status(status)}, ok, status == http.StatusTooManyRequests
	}

	contentType := resp.Header.Get("Content-Type")
	declaredSize, hasDeclaredSize := parseContentLength(resp.Header.Get("Content-Length"))
	lastModified := resp.Header.Get("Last-Modified")

	// ETag short-circuit (spec.md §4.5.2): the catalog treats ETag as an
	// acceptable content identifier, skip the body entirely.
	if etag := resp.Header.Get("Etag"); etag != "" {
		o := domain.ProbeOutcome{Status: domain.Status(http.StatusOK), Digest: etag, HasDigest: true, LastModified: lastModified}
		if hasDeclaredSize {
			o.Size, o.HasSize = declaredSize, true
		}
		return o, false, false
	}

	// too-large-to-hash short-circuit (spec.md §4.5.3)
	if hasDeclaredSize && declaredSize > maxHashableBytes {
		return domain.ProbeOutcome{Status: domain.StatusTooLarge}, false, false
	}

	useXLSX := shouldUseXLSXCase(r.Format, contentType, p.cfg.URLIgnore, r.URL)
	result, err := streamAndDigest(resp.Body, useXLSX)
	if err != nil {
		return domain.ProbeOutcome{Status: domain.StatusTransportFailure}, true, false
	}

	o := domain.ProbeOutcome{HasSize: true, Size: result.byteCount, LastModified: lastModified}
	if result.isXLSXCase {
		o.Digest, o.HasDigest = result.xlsxDigest, true
	} else {
		o.Digest, o.HasDigest = result.md5Hex, true
	}

	if !mimetypeMatches(r.Format, contentType) {
		o.Status = domain.StatusMimetypeMismatch
		return o, false, false
	}
	if !signatureMatches(r.Format, result.signature) {
		o.Status = domain.StatusSignatureMismatch
		return o, false, false
	}
	if hasDeclaredSize && declaredSize != result.byteCount {
		o.Status = domain.StatusSizeMismatch
		return o, false, false
	}

	o.Status = domain.StatusHashed
	return o, false, false
}

func shouldUseXLSXCase(format, contentType, urlIgnore, url string) bool {
	if strings.ToLower(format) != "xlsx" {
		return false
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct != xlsxMimetype {
		// binary mimetypes (application/octet-stream, application/binary)
		// are also accepted as "generic binary" per spec.md §4.5.5
		if _, ok := ignoredMimetypes[ct]; !ok {
			return false
		}
	}
	if urlIgnore != "" && pstrings.Contains(url, urlIgnore) {
		return false
	}
	return true
}

func parseContentLength(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
