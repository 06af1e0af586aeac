package downloader_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socify/socify_downloader/internal/downloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/missing.jpg"):
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprintf(w, "content of %s", r.URL.Path)
		}
	}))
	t.Cleanup(ts.Close)

	return ts
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestRetrieve_SavesUnderOriginalName(t *testing.T) {
	ts := fileServer(t, nil)
	dir := filepath.Join(t.TempDir(), "nested", "out")
	d := downloader.NewDownloader(dir, ts.Client(), nil)

	res, err := d.Retrieve(context.Background(), downloader.Target{URL: ts.URL + "/api/download/image/a.jpg", Name: "a.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "a.jpg", res.Name)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), res.Path)

	content, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "content of /api/download/image/a.jpg", string(content))
	assert.EqualValues(t, len(content), res.Bytes)
	assert.Equal(t, []string{"a.jpg"}, listDir(t, dir), "no part files left behind")
}

func TestRetrieve_NonSuccessStatus(t *testing.T) {
	ts := fileServer(t, nil)
	dir := t.TempDir()
	d := downloader.NewDownloader(dir, ts.Client(), nil)

	_, err := d.Retrieve(context.Background(), downloader.Target{URL: ts.URL + "/api/download/image/missing.jpg", Name: "missing.jpg"})

	var re *downloader.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Equal(t, "missing.jpg", re.Name)
	assert.Empty(t, listDir(t, dir))
}

func TestRetrieve_NameCannotEscapeTargetDir(t *testing.T) {
	ts := fileServer(t, nil)
	dir := t.TempDir()
	d := downloader.NewDownloader(dir, ts.Client(), nil)

	res, err := d.Retrieve(context.Background(), downloader.Target{URL: ts.URL + "/x", Name: "../../escape.jpg"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.jpg"), res.Path)
}

func TestRetrieve_InvalidName(t *testing.T) {
	var hits atomic.Int32

	ts := fileServer(t, &hits)
	d := downloader.NewDownloader(t.TempDir(), ts.Client(), nil)

	for _, name := range []string{"", "..", "/"} {
		_, err := d.Retrieve(context.Background(), downloader.Target{URL: ts.URL + "/x", Name: name})

		var re *downloader.RetrievalError
		require.ErrorAs(t, err, &re, "name %q", name)
		assert.Equal(t, "invalid file name", re.Reason)
	}

	assert.Zero(t, hits.Load())
}

func TestRetrieve_TransportFailure(t *testing.T) {
	ts := fileServer(t, nil)
	url := ts.URL
	ts.Close()

	dir := t.TempDir()
	d := downloader.NewDownloader(dir, nil, nil)

	_, err := d.Retrieve(context.Background(), downloader.Target{URL: url + "/a.jpg", Name: "a.jpg"})

	var re *downloader.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
	assert.NotNil(t, errors.Unwrap(re))
	assert.Empty(t, listDir(t, dir))
}

func TestRetrieve_TwiceIssuesTwoRequests(t *testing.T) {
	var hits atomic.Int32

	ts := fileServer(t, &hits)
	d := downloader.NewDownloader(t.TempDir(), ts.Client(), nil)
	target := downloader.Target{URL: ts.URL + "/api/download/image/a.jpg", Name: "a.jpg"}

	_, err := d.Retrieve(context.Background(), target)
	require.NoError(t, err)
	_, err = d.Retrieve(context.Background(), target)
	require.NoError(t, err)

	assert.EqualValues(t, 2, hits.Load())
}

func TestRetrievalError_Error(t *testing.T) {
	tests := []struct {
		err  *downloader.RetrievalError
		want string
	}{
		{&downloader.RetrievalError{Name: "a.jpg", Reason: "unexpected status", StatusCode: 404}, "retrieval of a.jpg failed: unexpected status (HTTP 404)"},
		{&downloader.RetrievalError{Name: "a.jpg", Reason: "request failed", Err: errors.New("timeout")}, "retrieval of a.jpg failed: request failed: timeout"},
		{&downloader.RetrievalError{Name: "", Reason: "invalid file name"}, "retrieval of  failed: invalid file name"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestRetrieve_RateLimited(t *testing.T) {
	payload := strings.Repeat("x", 1500)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(ts.Close)

	d := downloader.NewDownloader(t.TempDir(), ts.Client(), nil)
	d.LimitRate(1000)

	start := time.Now()

	res, err := d.Retrieve(context.Background(), downloader.Target{URL: ts.URL + "/a.bin", Name: "a.bin"})
	require.NoError(t, err)

	assert.EqualValues(t, len(payload), res.Bytes)
	// 1000 bytes come from the full bucket, the other 500 wait for refill.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}
