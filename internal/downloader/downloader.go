// Package downloader is the file retrieval primitive: it fetches a retrieval target
// and saves it under its original name in the target directory.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/ratelimit"
	"github.com/socify/socify_downloader/internal/downloader/progress"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	dirPerm          = 0755
	progressInterval = int64(10 * 1024 * 1024) // 10MB
	// PartPattern matches the transient files bodies are streamed into.
	PartPattern      = ".socify-*.part"
)

// Target is one retrieval: where to fetch the file and the name to save it under.
type Target struct {
	URL  string
	Name string
}

// Result describes a saved file.
type Result struct {
	Name  string
	Path  string
	Bytes int64
}

type Downloader struct {
	downloadDir string
	httpClient  *http.Client
	telemetry   *telemetry.Telemetry
	bucket      *ratelimit.Bucket
}

// NewDownloader creates a downloader saving into downloadDir. A nil httpClient gets an
// otelhttp-instrumented default client.
func NewDownloader(downloadDir string, httpClient *http.Client, tel *telemetry.Telemetry) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Downloader{
		downloadDir: downloadDir,
		httpClient:  httpClient,
		telemetry:   tel,
	}
}

// LimitRate caps the bandwidth shared by all retrievals of d. Zero or less removes the cap.
func (d *Downloader) LimitRate(bytesPerSecond int64) {
	if bytesPerSecond <= 0 {
		d.bucket = nil

		return
	}

	d.bucket = ratelimit.NewBucketWithRate(float64(bytesPerSecond), bytesPerSecond)
}

// Retrieve fetches target and saves it as downloadDir/<name>. The body lands in a
// transient part file first; that file is always gone when Retrieve returns.
func (d *Downloader) Retrieve(ctx context.Context, target Target) (*Result, error) {
	var result *Result

	err := d.telemetry.InstrumentRetrieval(ctx, func(ctx context.Context) (int64, error) {
		var err error

		result, err = d.retrieve(ctx, target)
		if err != nil {
			return 0, err
		}

		return result.Bytes, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (d *Downloader) retrieve(ctx context.Context, target Target) (*Result, error) {
	name, err := safeName(target.Name)
	if err != nil {
		return nil, err
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &RetrievalError{Name: name, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &RetrievalError{Name: name, StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	if err := d.ensureTargetDir(logger); err != nil {
		return nil, err
	}

	targetPath := filepath.Join(d.downloadDir, name)

	written, err := d.writeFile(ctx, logger, resp.Body, targetPath, resp.ContentLength)
	if err != nil {
		return nil, &RetrievalError{Name: name, Reason: "failed to save file", Err: err}
	}

	logger.Info("retrieved and saved file", "target", targetPath, "size", humanize.Bytes(uint64(written)))

	return &Result{Name: name, Path: targetPath, Bytes: written}, nil
}

// writeFile streams reader into a part file next to targetPath and renames it into place.
func (d *Downloader) writeFile(ctx context.Context, logger *slog.Logger, reader io.Reader, targetPath string, totalBytes int64) (int64, error) {
	part, err := os.CreateTemp(d.downloadDir, PartPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create part file: %w", err)
	}

	partPath := part.Name()
	defer os.Remove(partPath) // no-op once renamed

	if totalBytes > 0 {
		logger.Debug("retrieving file", "file_size", humanize.Bytes(uint64(totalBytes)))
	}

	if d.bucket != nil {
		reader = ratelimit.Reader(reader, d.bucket)
	}

	start := time.Now()
	pr := progress.NewReader(reader, totalBytes, progressInterval, func(written, total int64) {
		if total > 0 {
			logger.Debug("retrieval progress",
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("retrieval progress", "downloaded", humanize.Bytes(uint64(written)))
		}
	})

	if _, err := io.Copy(part, pr); err != nil {
		part.Close()

		return 0, fmt.Errorf("failed to copy file: %w", err)
	}

	if err := part.Close(); err != nil {
		return 0, fmt.Errorf("failed to close part file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.Rename(partPath, targetPath); err != nil {
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}

	logger.Debug("retrieval finished", "elapsed", time.Since(start).String())

	return pr.Written(), nil
}

func (d *Downloader) ensureTargetDir(logger *slog.Logger) error {
	if err := os.MkdirAll(d.downloadDir, dirPerm); err != nil {
		logger.Error("failed to create target directory", "dir", d.downloadDir, "err", err)

		return fmt.Errorf("failed to create target directory: %w", err)
	}

	return nil
}

// safeName keeps only the last path element so a descriptor cannot write outside the target dir.
func safeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filepath.FromSlash(name)))
	if base == "" || base == "." || base == string(filepath.Separator) || base == ".." {
		return "", &RetrievalError{Name: name, Reason: "invalid file name"}
	}

	return base, nil
}
