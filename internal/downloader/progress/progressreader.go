// Package progress reports bytes flowing through an io.Reader.
package progress

import "io"

// Reader wraps an io.Reader and calls OnProgress every reportInterval bytes,
// and once more when the 5% mark of a known total is crossed.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(written int64, total int64)

	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

// NewReader wraps r. total may be -1 or 0 when the size is unknown.
func NewReader(r io.Reader, total int64, interval int64, cb func(written int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n <= 0 {
		return n, err
	}

	before := pr.totalRead
	pr.totalRead += int64(n)
	pr.sinceReport += int64(n)

	crossedFivePercent := pr.Total > 0 && pr.totalRead*100/pr.Total >= 5 && before*100/pr.Total < 5

	if pr.sinceReport >= pr.reportInterval || crossedFivePercent {
		if pr.OnProgress != nil {
			pr.OnProgress(pr.totalRead, pr.Total)
		}

		pr.sinceReport = 0
	}

	return n, err
}

// Written is the number of bytes read so far.
func (pr *Reader) Written() int64 {
	return pr.totalRead
}
