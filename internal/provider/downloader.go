package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
)

// Downloader fetches reference images over HTTP with a size cap and a
// bounded timeout.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
	log        *zap.Logger
}

// NewDownloader creates a reference downloader.
func NewDownloader(timeout time.Duration, maxBytes int64, log *zap.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		log:        log.Named("downloader"),
	}
}

// Fetch downloads the resource and verifies it is an image. The body is
// read through a size-capped reader so a misbehaving origin cannot blow
// up worker memory.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", NewError("downloader", model.ErrorClassPermanent, "invalid url: "+err.Error())
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.log.Warn("download failed", zap.String("url", url), zap.Error(err))
		return nil, "", NewError("downloader", model.ErrorClassTransient, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", httpError("downloader", resp.StatusCode, nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", NewError("downloader", model.ErrorClassPermanent,
			fmt.Sprintf("unexpected content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", NewError("downloader", model.ErrorClassTransient, "read failed: "+err.Error())
	}
	if int64(len(body)) > d.maxBytes {
		return nil, "", NewError("downloader", model.ErrorClassPermanent,
			fmt.Sprintf("resource exceeds %d bytes", d.maxBytes))
	}

	d.log.Debug("downloaded reference",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)))
	return body, contentType, nil
}
