package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Fetcher downloads source documents to a local cache path.
type Fetcher struct {
	client     *http.Client
	maxBytes   int64
	maxRetries int
	backoff    func(attempt int) time.Duration
	log        *slog.Logger
}

func NewFetcher(maxBytes int64, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: 5 * time.Minute},
		maxBytes:   maxBytes,
		maxRetries: MaxRetries,
		backoff:    Backoff,
		log:        log,
	}
}

// Fetch downloads rawURL to dest unless dest already exists. It reports
// whether the cached copy was used. The existing file is trusted as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) (bool, error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		f.log.Debug("using cached document", "url", rawURL, "path", dest)
		return true, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported document url")}
	}

	for attempt := 0; ; attempt++ {
		err = f.download(ctx, rawURL, dest)
		if err == nil {
			return false, nil
		}
		if attempt >= f.maxRetries || !IsRetryable(err) {
			return false, err
		}
		delay := f.backoff(attempt)
		f.log.Warn("retryable fetch error", "url", rawURL, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, &FetchError{URL: rawURL, Err: ctx.Err()}
		}
	}
}

// download streams the body into a temp file next to dest and renames it
// into place, so dest only ever holds a complete document.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err, transport: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, err := io.Copy(tmp, body)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err, transport: ctx.Err() == nil}
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return &FetchError{URL: rawURL, Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)}
	}
	if n == 0 {
		return &FetchError{URL: rawURL, Err: errors.New("empty response body")}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}

	f.log.Info("downloaded document", "url", rawURL, "path", dest, "bytes", n)
	return nil
}
