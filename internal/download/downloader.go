package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
)

// HTTPDownloader streams remote payloads to a local writer.
type HTTPDownloader struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPDownloader creates a new HTTP downloader.
func NewHTTPDownloader(logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: 0, // per-request deadlines come from the context
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.Named("http-downloader"),
	}
}

// Download fetches source into destination, reporting progress through
// onProgress (percent 0..100, -1 when the total size is unknown).
func (d *HTTPDownloader) Download(ctx context.Context, source string, destination io.Writer, onProgress func(percent int)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "playerd/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeTransient, "failed to start download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrap(errors.ErrorTypeTransient,
			fmt.Sprintf("unexpected status code %d", resp.StatusCode), nil)
	}

	totalSize := int64(0)
	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
			totalSize = size
		}
	}

	pw := &progressWriter{
		writer:     destination,
		totalSize:  totalSize,
		onProgress: onProgress,
		lastReport: time.Now(),
	}

	bytesWritten, err := io.CopyBuffer(pw, resp.Body, make([]byte, 32*1024))
	if err != nil {
		return bytesWritten, errors.Wrap(errors.ErrorTypeTransient,
			fmt.Sprintf("download failed after %d bytes", bytesWritten), err)
	}

	return bytesWritten, nil
}

// progressWriter wraps an io.Writer to report percent progress at most once
// per second.
type progressWriter struct {
	writer       io.Writer
	totalSize    int64
	bytesWritten int64
	onProgress   func(percent int)
	lastReport   time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	if err != nil {
		return n, err
	}

	pw.bytesWritten += int64(n)

	if pw.onProgress != nil && time.Since(pw.lastReport) >= time.Second {
		pw.onProgress(pw.percent())
		pw.lastReport = time.Now()
	}

	return n, nil
}

func (pw *progressWriter) percent() int {
	if pw.totalSize <= 0 {
		return -1
	}
	p := int(pw.bytesWritten * 100 / pw.totalSize)
	if p > 100 {
		p = 100
	}
	return p
}
