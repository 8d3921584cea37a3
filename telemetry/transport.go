// Package telemetry provides transfer accounting for remote dataset
// access: a byte-counting HTTP transport and OpenTelemetry counters for
// fetch operations.
package telemetry

import (
	"io"
	"net/http"
	"sync/atomic"
)

// CountingTransport wraps an http.RoundTripper and counts requests made
// and response body bytes read through it. It is used to attribute
// transfer volume to dataset reads, and in tests to assert byte budgets
// (for example that a lazy open transfers metadata only).
type CountingTransport struct {
	base     http.RoundTripper
	requests atomic.Int64
	bytes    atomic.Int64
}

// NewCountingTransport creates a counting transport. If base is nil,
// http.DefaultTransport is used.
func NewCountingTransport(base http.RoundTripper) *CountingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CountingTransport{base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests.Add(1)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	resp.Body = &countingBody{ReadCloser: resp.Body, bytes: &t.bytes}
	return resp, nil
}

// Requests returns the number of requests issued through the transport.
func (t *CountingTransport) Requests() int64 {
	return t.requests.Load()
}

// BytesRead returns the total response body bytes read so far.
func (t *CountingTransport) BytesRead() int64 {
	return t.bytes.Load()
}

// Reset zeroes both counters.
func (t *CountingTransport) Reset() {
	t.requests.Store(0)
	t.bytes.Store(0)
}

// countingBody wraps a response body to count bytes as they are read.
type countingBody struct {
	io.ReadCloser
	bytes *atomic.Int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.bytes.Add(int64(n))
	return n, err
}
