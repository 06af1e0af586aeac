// Package extractor talks to the remote extraction backend that turns a content URL
// into a list of downloadable files.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/workflow"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const downloadPath = "/api/download"

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

type extractRequest struct {
	URL string `json:"url"`
}

// extractResponse is the union of the success and failure bodies.
type extractResponse struct {
	Files   []workflow.FileDescriptor `json:"files"`
	Message string                    `json:"message"`
}

// NewClient builds a backend client. A nil httpClient gets an otelhttp-instrumented
// client without a timeout; in-flight submissions run to completion.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Extract asks the backend to prepare the media behind contentURL.
func (c *Client) Extract(ctx context.Context, contentURL string) ([]workflow.FileDescriptor, error) {
	logger := logctx.LoggerFromContext(ctx).With("endpoint", downloadPath)

	body, err := json.Marshal(extractRequest{URL: contentURL})
	if err != nil {
		return nil, &TransportError{Operation: "encode_request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+downloadPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Operation: "build_request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	logger.Debug("sending extraction request", "url", contentURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("extraction request failed", "err", err)

		return nil, &TransportError{Operation: "send_request", Err: err}
	}
	defer resp.Body.Close()

	// The backend answers with JSON on failure too, so decode before looking at the status.
	var payload extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Error("failed to decode extraction response", "status", resp.StatusCode, "err", err)

		return nil, &TransportError{
			Operation: "decode_response",
			Err:       fmt.Errorf("failed to decode response: %w", err),
		}
	}

	logger.Debug("extraction response received", "status", resp.StatusCode, "file_count", len(payload.Files))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &BackendError{StatusCode: resp.StatusCode, Message: payload.Message}
	}

	if payload.Files == nil {
		return []workflow.FileDescriptor{}, nil
	}

	return payload.Files, nil
}

// FileURL is the retrieval target of a descriptor: {base}/api/download/{type}/{name}.
func (c *Client) FileURL(fd workflow.FileDescriptor) string {
	return fmt.Sprintf("%s%s/%s/%s", c.BaseURL, downloadPath, url.PathEscape(fd.Type), url.PathEscape(fd.Name))
}
