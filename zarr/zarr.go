// Package zarr reads chunked multi-dimensional datasets directly from a
// remote HTTP store without copying them to local storage. Opening a
// store fetches its consolidated metadata only; chunk payloads are
// transferred when a caller reads a subset of an array.
//
// The reader understands zarr v2 stores with consolidated metadata,
// C-order arrays, and zlib, gzip, zstd, or uncompressed chunks.
package zarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrTransport marks failures reaching the remote store. Transient;
	// callers may retry.
	ErrTransport = errors.New("zarr: transport failure")

	// ErrLayout marks stores the reader cannot interpret. Fatal.
	ErrLayout = errors.New("zarr: incompatible store layout")
)

// DefaultTimeout is the default timeout for store requests.
const DefaultTimeout = 60 * time.Second

// Dataset is an open remote store: a set of named arrays sharing labeled
// dimensions. The full dimensionality and variable set are known as soon
// as Open returns.
type Dataset struct {
	url    string
	client *http.Client
	logger *slog.Logger
	arrays map[string]*Array

	// Integer rescaling contract, applied to integer-typed arrays on
	// read when enabled.
	scaled   bool
	scale    float64
	sentinel int64
}

// Option configures Open.
type Option func(*Dataset)

// WithHTTPClient sets the HTTP client used for store requests.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dataset) {
		d.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dataset) {
		d.logger = logger
	}
}

// WithIntScaling rescales integer-typed arrays to floating-point physical
// units on read: stored values equal to sentinel become NaN, all others
// are multiplied by scale.
func WithIntScaling(scale float64, sentinel int64) Option {
	return func(d *Dataset) {
		d.scaled = true
		d.scale = scale
		d.sentinel = sentinel
	}
}

// Open opens a remote store. Exactly one request is made, for the store's
// consolidated metadata; no chunk payload is transferred.
func Open(ctx context.Context, storeURL string, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		url:    strings.TrimSuffix(storeURL, "/"),
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
		arrays: map[string]*Array{},
	}
	for _, opt := range opts {
		opt(d)
	}

	raw, found, err := d.get(ctx, ".zmetadata")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: store has no consolidated metadata", ErrLayout)
	}

	var meta consolidated
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing consolidated metadata: %v", ErrLayout, err)
	}
	if meta.Format != 1 {
		return nil, fmt.Errorf("%w: unsupported consolidated metadata format %d", ErrLayout, meta.Format)
	}

	if err := d.buildArrays(meta); err != nil {
		return nil, err
	}

	d.logger.Debug("opened remote store", "url", d.url, "arrays", len(d.arrays))
	return d, nil
}

func (d *Dataset) buildArrays(meta consolidated) error {
	for key, raw := range meta.Metadata {
		name, ok := strings.CutSuffix(key, "/.zarray")
		if !ok {
			continue
		}

		var am arrayMeta
		if err := json.Unmarshal(raw, &am); err != nil {
			return fmt.Errorf("%w: parsing metadata of array %s: %v", ErrLayout, name, err)
		}
		if err := am.validate(name); err != nil {
			return err
		}

		dt, err := parseDtype(am.Dtype)
		if err != nil {
			return fmt.Errorf("array %s: %w", name, err)
		}

		fill, hasFill, err := am.fill()
		if err != nil {
			return fmt.Errorf("array %s: %w", name, err)
		}

		a := &Array{
			ds:      d,
			name:    name,
			meta:    am,
			dt:      dt,
			sep:     am.separator(),
			fill:    fill,
			hasFill: hasFill,
			scaled:  d.scaled && dt.integer(),
		}

		if rawAttrs, ok := meta.Metadata[name+"/.zattrs"]; ok {
			var attrs arrayAttrs
			if err := json.Unmarshal(rawAttrs, &attrs); err == nil &&
				len(attrs.Dimensions) == len(am.Shape) {
				a.dims = attrs.Dimensions
			}
		}

		d.arrays[name] = a
	}

	if len(d.arrays) == 0 {
		return fmt.Errorf("%w: store contains no arrays", ErrLayout)
	}
	return nil
}

// URL returns the store URL.
func (d *Dataset) URL() string {
	return d.url
}

// Vars returns the names of the store's arrays in sorted order.
func (d *Dataset) Vars() []string {
	names := make([]string, 0, len(d.arrays))
	for name := range d.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Var returns an array by name.
func (d *Dataset) Var(name string) (*Array, error) {
	a, ok := d.arrays[name]
	if !ok {
		return nil, fmt.Errorf("no array %q in store", name)
	}
	return a, nil
}

// Dims returns the union of labeled dimension sizes across arrays.
// Arrays without dimension labels contribute nothing.
func (d *Dataset) Dims() map[string]int {
	dims := map[string]int{}
	for _, a := range d.arrays {
		for i, name := range a.dims {
			dims[name] = a.meta.Shape[i]
		}
	}
	return dims
}

// get performs one store request. The second return value is false when
// the key does not exist, which is how zarr represents chunks holding
// only the fill value.
func (d *Dataset) get(ctx context.Context, key string) ([]byte, bool, error) {
	url := d.url + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: store returned %s for %s", ErrTransport, resp.Status, key)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %v", ErrTransport, key, err)
	}
	return data, true, nil
}

// decompress expands a raw chunk payload according to the array's
// compressor.
func decompress(comp *compressorMeta, data []byte) ([]byte, error) {
	if comp == nil {
		return data, nil
	}

	switch comp.ID {
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening zlib chunk: %w", err)
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening gzip chunk: %w", err)
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening zstd chunk: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("%w: unsupported compressor %q", ErrLayout, comp.ID)
	}
}
