package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"propflow/config"
)

// Source fetches raw predictor output. Implementations return payload bytes
// untouched; all parsing happens in the normalizer.
type Source interface {
	// Fetch returns one sport's prediction feed document.
	Fetch(ctx context.Context, sport string) ([]byte, error)
	// FetchPerformance returns the monitoring process's report document.
	FetchPerformance(ctx context.Context) ([]byte, error)
	Name() string
}

// NewSource builds the Source selected by the ingest config.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Ingest.Feeds.Mode {
	case "file":
		return newFileSource(cfg), nil
	case "http":
		return newHTTPSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported feed mode %q", cfg.Ingest.Feeds.Mode)
	}
}

// fileSource reads the predictor's output directory. The predictor writes
// one predictions_<sport>.json per sport plus performance.json, all
// lowercase.
type fileSource struct {
	dir      string
	perfPath string
}

func newFileSource(cfg *config.Config) *fileSource {
	perfPath := cfg.Ingest.Performance.Path
	if perfPath == "" {
		perfPath = filepath.Join(cfg.Ingest.Feeds.Dir, "performance.json")
	}
	return &fileSource{
		dir:      cfg.Ingest.Feeds.Dir,
		perfPath: perfPath,
	}
}

func (s *fileSource) Name() string { return "file" }

func (s *fileSource) Fetch(_ context.Context, sport string) ([]byte, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("predictions_%s.json", strings.ToLower(sport)))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s feed: %w", sport, err)
	}
	return data, nil
}

func (s *fileSource) FetchPerformance(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.perfPath)
	if err != nil {
		return nil, fmt.Errorf("reading performance report: %w", err)
	}
	return data, nil
}

// httpSource fetches feeds from the predictor's HTTP endpoint. A single
// limiter spans all sport workers so the predictor sees one client, and
// transient failures retry with exponential backoff.
type httpSource struct {
	base    string
	perfURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   config.RetryConfig
}

func newHTTPSource(cfg *config.Config) *httpSource {
	transport := &http.Transport{
		MaxIdleConns:    cfg.Ingest.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: cfg.Ingest.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: cfg.Ingest.ConnectionPool.IdleConnTimeout,
	}

	rps := cfg.Ingest.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Ingest.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	base := strings.TrimRight(cfg.Ingest.Feeds.URL, "/")
	perfURL := base + "/performance"
	if path := cfg.Ingest.Performance.Path; path != "" {
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			perfURL = path
		} else {
			perfURL = base + "/" + strings.TrimLeft(path, "/")
		}
	}

	return &httpSource{
		base:    base,
		perfURL: perfURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Ingest.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:   cfg.Ingest.Retry,
	}
}

func (s *httpSource) Name() string { return "http" }

func (s *httpSource) Fetch(ctx context.Context, sport string) ([]byte, error) {
	return s.get(ctx, fmt.Sprintf("%s/predictions/%s", s.base, strings.ToLower(sport)))
}

func (s *httpSource) FetchPerformance(ctx context.Context) ([]byte, error) {
	return s.get(ctx, s.perfURL)
}

func (s *httpSource) get(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		payload, err = io.ReadAll(resp.Body)
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	if s.retry.BaseDelay > 0 {
		strategy.InitialInterval = s.retry.BaseDelay
	}
	if s.retry.MaxDelay > 0 {
		strategy.MaxInterval = s.retry.MaxDelay
	}

	attempts := s.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return payload, nil
}
