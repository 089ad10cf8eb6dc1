package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

const defaultChunkSize = 256 * 1024

// HTTPContentDownloader implements domain.ContentDownloader over HTTP(S).
// Response bodies are streamed to the caller as flushed chunks followed by a
// single succeeded or failed event.
type HTTPContentDownloader struct {
	config   *domain.DownloaderConfig
	client   *http.Client
	retry    RetryConfig
	logger   *zap.Logger
	inFlight atomic.Int64
}

// NewHTTPContentDownloader creates a new HTTP content downloader
func NewHTTPContentDownloader(config *domain.DownloaderConfig, logger *zap.Logger) *HTTPContentDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = config.MaxRetries
	if config.RetryDelay > 0 {
		retry.InitialDelay = config.RetryDelay
	}

	return &HTTPContentDownloader{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		retry:  retry,
		logger: logger,
	}
}

// SetRetryConfig overrides the retry policy
func (d *HTTPContentDownloader) SetRetryConfig(cfg RetryConfig) {
	d.retry = cfg
}

// DownloadManifest fetches the server manifest from the configured URL
func (d *HTTPContentDownloader) DownloadManifest(ctx context.Context) (<-chan domain.DownloadEvent, error) {
	if d.config.ManifestURL == "" {
		return nil, errors.New("manifest URL is not configured")
	}
	return d.start(ctx, d.config.ManifestURL)
}

// DownloadPackage fetches a package archive
func (d *HTTPContentDownloader) DownloadPackage(ctx context.Context, rawURL string) (<-chan domain.DownloadEvent, error) {
	return d.start(ctx, rawURL)
}

// CurrentDownloadedBytes returns the bytes received for the active request
func (d *HTTPContentDownloader) CurrentDownloadedBytes() int64 {
	return d.inFlight.Load()
}

func (d *HTTPContentDownloader) start(ctx context.Context, rawURL string) (<-chan domain.DownloadEvent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	d.inFlight.Store(0)
	events := make(chan domain.DownloadEvent)
	go d.stream(ctx, rawURL, events)
	return events, nil
}

// stream performs the request and forwards the body in chunks
func (d *HTTPContentDownloader) stream(ctx context.Context, rawURL string, events chan<- domain.DownloadEvent) {
	defer close(events)

	emit := func(ev domain.DownloadEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		d.inFlight.Store(0)
		d.logger.Warn("Content download failed", zap.String("url", rawURL), zap.Error(err))
		emit(domain.DownloadEvent{Result: domain.EventFailed, Err: err})
	}

	d.logger.Debug("Requesting content", zap.String("url", rawURL))

	resp, err := doWithRetry(ctx, d.client, rawURL, d.headers(), d.retry, d.logger)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fail(fmt.Errorf("unexpected HTTP status %d from %s", resp.StatusCode, rawURL))
		return
	}

	chunkSize := d.config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			d.inFlight.Add(int64(n))
		}

		switch {
		case err == nil:
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !emit(domain.DownloadEvent{Result: domain.EventFlushed, Data: chunk}) {
				return
			}
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			tail := make([]byte, n)
			copy(tail, buf[:n])
			d.logger.Debug("Content downloaded",
				zap.String("url", rawURL),
				zap.Int64("bytes", d.inFlight.Load()))
			d.inFlight.Store(0)
			emit(domain.DownloadEvent{Result: domain.EventSucceeded, Data: tail})
			return
		default:
			fail(fmt.Errorf("failed to read response body: %w", err))
			return
		}
	}
}

func (d *HTTPContentDownloader) headers() http.Header {
	h := make(http.Header)
	for k, v := range d.config.Headers {
		h.Set(k, v)
	}
	if d.config.UserAgent != "" {
		h.Set("User-Agent", d.config.UserAgent)
	}
	return h
}
