// Package sources checks the URLs literature reviews cite: robots.txt
// compliance, reachability, page title and authority tier.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/worker"
)

const (
	defaultUserAgent = "Lemmata/0.1 (+https://github.com/ppiankov/lemmata)"
	checkMaxAttempts = 3
	maxRedirects     = 5
)

// Checker fetches literature sources
type Checker struct {
	client     *http.Client
	robots     *RobotsChecker
	classifier *Classifier
	limiter    *worker.Limiter
	pool       *worker.Pool
	userAgent  string
	maxBytes   int64
	logger     *zap.Logger

	// sleep waits between retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChecker builds a checker from the sources config
func NewChecker(cfg config.SourcesConfig, workers int, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Checker{
		client:     client,
		robots:     NewRobotsChecker(ua, client),
		classifier: NewClassifier(nil),
		limiter:    worker.NewLimiter(2, 2),
		pool:       worker.NewPool("sources", workers, logger),
		userAgent:  ua,
		maxBytes:   maxBytes,
		logger:     logger.Named("sources"),
		sleep:      sleepCtx,
	}
}

// Check inspects one source. Non-HTTP sources (the seed and problem
// sentinels) are skipped but still classified.
func (c *Checker) Check(ctx context.Context, source string) model.SourceStatus {
	status := model.SourceStatus{Authority: c.classifier.Classify(source)}

	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		status.Authority = model.TierUnknown
		status.Skipped = true
		return status
	}

	allowed, delay, err := c.robots.CanFetch(ctx, source)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	if !allowed {
		status.Skipped = true
		status.Error = "disallowed by robots.txt"
		return status
	}

	for attempt := 0; attempt < checkMaxAttempts; attempt++ {
		if err := c.limiter.WaitWithDelay(ctx, worker.HostKey(source), delay); err != nil {
			status.Error = err.Error()
			return status
		}

		status = c.fetch(ctx, source, status.Authority)
		if !retryable(status) || attempt == checkMaxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		c.logger.Debug("retrying source check",
			zap.String("url", source),
			zap.Int("status", status.StatusCode),
			zap.String("error", status.Error),
			zap.Duration("backoff", backoff))
		if err := c.sleep(ctx, backoff); err != nil {
			status.Error = err.Error()
			break
		}
	}
	return status
}

func (c *Checker) fetch(ctx context.Context, source string, tier model.AuthorityTier) model.SourceStatus {
	status := model.SourceStatus{Authority: tier}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		status.Error = fmt.Sprintf("create request: %v", err)
		return status
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("request failed: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.StatusCode = resp.StatusCode
	status.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400
	if !status.Reachable {
		return status
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		status.Title = ExtractTitle(io.LimitReader(resp.Body, c.maxBytes))
	}
	return status
}

// Annotate returns a copy of lit with a status on every item. Items are
// checked concurrently on the pool; duplicate sources are fetched once.
func (c *Checker) Annotate(ctx context.Context, lit model.Literature) model.Literature {
	var tasks []worker.Task[string, model.SourceStatus]
	seen := make(map[string]bool)
	for _, it := range lit.Items {
		if seen[it.Source] {
			continue
		}
		seen[it.Source] = true
		tasks = append(tasks, worker.Task[string, model.SourceStatus]{
			Key: it.Source,
			Run: func(ctx context.Context) (model.SourceStatus, error) {
				return c.Check(ctx, it.Source), nil
			},
		})
	}

	statuses := make(map[string]model.SourceStatus, len(tasks))
	worker.Stream(ctx, c.pool, tasks, func(r worker.Result[string, model.SourceStatus]) {
		if r.Err != nil {
			statuses[r.Key] = model.SourceStatus{Authority: c.classifier.Classify(r.Key), Error: r.Err.Error()}
			return
		}
		statuses[r.Key] = r.Value
	})

	out := lit.Append()
	reachable := 0
	for i := range out.Items {
		st := statuses[out.Items[i].Source]
		if st.Reachable {
			reachable++
		}
		out.Items[i].Status = &st
	}
	c.logger.Info("checked literature sources",
		zap.Int("items", len(out.Items)),
		zap.Int("sources", len(tasks)),
		zap.Int("reachable", reachable))
	return out
}

// retryable reports transient failures: 5xx, 429 and network timeouts or resets
func retryable(s model.SourceStatus) bool {
	if s.StatusCode >= 500 || s.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if s.Error == "" {
		return false
	}
	msg := strings.ToLower(s.Error)
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
