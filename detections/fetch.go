package detections

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultFetchAttempts = 3
	DefaultFetchMaxBytes = 20 << 20
)

// Fetcher downloads a remote image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher retries transient failures with exponential backoff. Client
// errors (4xx) are not retried.
type HTTPFetcher struct {
	Client          *http.Client
	Attempts        int
	MaxBytes        int64
	InitialInterval time.Duration
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		Client:          &http.Client{Timeout: timeout},
		Attempts:        DefaultFetchAttempts,
		MaxBytes:        DefaultFetchMaxBytes,
		InitialInterval: backoff.DefaultInitialInterval,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > f.MaxBytes {
			return backoff.Permanent(fmt.Errorf("image larger than %d bytes", f.MaxBytes))
		}
		body = data
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.InitialInterval
	attempts := f.Attempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		slog.Warn("image fetch failed, retrying",
			slog.String("url", url),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
