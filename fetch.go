package sampledata

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/landmonitor/sampledata/cachedir"
	"github.com/landmonitor/sampledata/metadb"
	"github.com/landmonitor/sampledata/telemetry"
)

const (
	// AppName keys the per-user cache directory for fetched datasets.
	AppName = "landmonitor-sampledata"

	// metaDBName is the metadata index file inside the cache directory.
	metaDBName = "sampledata.db"

	// DefaultTimeout is the default timeout for origin requests.
	DefaultTimeout = 5 * time.Minute
)

// Fetcher resolves logical asset names to verified local files. It owns
// the on-disk cache directory exclusively; callers only ever receive
// paths into it.
type Fetcher struct {
	registry *Registry
	root     string
	client   *http.Client
	logger   *slog.Logger
	meta     *metadb.DB
	group    singleflight.Group
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRegistry sets the asset registry. Defaults to DefaultRegistry.
func WithRegistry(r *Registry) FetcherOption {
	return func(f *Fetcher) {
		f.registry = r
	}
}

// WithCacheDir sets the cache directory, bypassing the user-level cache
// location. The directory is created if absent.
func WithCacheDir(dir string) FetcherOption {
	return func(f *Fetcher) {
		f.root = dir
	}
}

// WithHTTPClient sets the HTTP client used for origin downloads. A
// caller-supplied timeout on this client is the expected cancellation
// mechanism, alongside the request context.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher over the built-in registry and the
// user-level cache directory, unless overridden by options.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		registry: DefaultRegistry(),
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.root == "" {
		root, err := cachedir.Resolve(AppName)
		if err != nil {
			return nil, &StorageError{Path: AppName, Err: err}
		}
		f.root = root
	} else if err := os.MkdirAll(f.root, 0o755); err != nil {
		return nil, &StorageError{Path: f.root, Err: err}
	}

	// Metadata tracking is best effort; a locked or corrupt index must
	// not block dataset access.
	meta, err := metadb.Open(filepath.Join(f.root, metaDBName))
	if err != nil {
		f.logger.Warn("metadata index unavailable", "error", err)
	} else {
		f.meta = meta
	}

	return f, nil
}

// Close releases the metadata index. The cached files remain on disk.
func (f *Fetcher) Close() error {
	if f.meta == nil {
		return nil
	}
	return f.meta.Close()
}

// CacheDir returns the cache directory the fetcher owns.
func (f *Fetcher) CacheDir() string {
	return f.root
}

// Registry returns the registry the fetcher resolves names against.
func (f *Fetcher) Registry() *Registry {
	return f.registry
}

// Metadata returns the recorded fetch metadata for an asset, or
// metadb.ErrNotFound if the asset has never been fetched. Returns an
// error if the metadata index is unavailable.
func (f *Fetcher) Metadata(name string) (*metadb.Entry, error) {
	if f.meta == nil {
		return nil, fmt.Errorf("metadata index unavailable")
	}
	return f.meta.Get(name)
}

// Fetch resolves a logical asset name to a verified local file path. On a
// cache hit the existing file is re-verified against the asset's
// integrity token and reused; on a miss or failed verification the asset
// is downloaded from its origin, written atomically, and verified. A
// download whose content mismatches the token is retried once; a second
// mismatch fails with IntegrityError.
//
// Concurrent fetches of the same asset within the process are collapsed
// into a single download.
func (f *Fetcher) Fetch(ctx context.Context, name string) (string, error) {
	asset, err := f.registry.Get(name)
	if err != nil {
		return "", err
	}

	v, err, _ := f.group.Do(name, func() (any, error) {
		return f.fetch(ctx, asset)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *Fetcher) fetch(ctx context.Context, asset Asset) (string, error) {
	start := time.Now()
	logger := f.logger.With("asset", asset.Name, "fetch_id", uuid.NewString())

	local := filepath.Join(f.root, localBasename(asset))

	if _, err := os.Stat(local); err == nil {
		if asset.Unverified {
			logger.Debug("cache hit, verification disabled")
			f.touch(asset.Name)
			telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeHit, time.Since(start), 0)
			return local, nil
		}

		got, ok, err := asset.Token.VerifyFile(local)
		if err != nil {
			return "", &StorageError{Path: local, Err: err}
		}
		if ok {
			logger.Debug("cache hit", "token", asset.Token)
			f.touch(asset.Name)
			telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeHit, time.Since(start), 0)
			return local, nil
		}
		logger.Warn("cached file failed verification, re-fetching",
			"want", asset.Token, "got", got)

		size, err := f.download(ctx, logger, asset, local)
		if err != nil {
			telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeError, time.Since(start), 0)
			return "", err
		}
		telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeRefetch, time.Since(start), size)
		return local, nil
	}

	size, err := f.download(ctx, logger, asset, local)
	if err != nil {
		telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeError, time.Since(start), 0)
		return "", err
	}
	telemetry.RecordFetch(ctx, asset.Name, telemetry.OutcomeMiss, time.Since(start), size)
	return local, nil
}

// download fetches the asset from its origin into local, retrying once
// when the downloaded content fails verification.
func (f *Fetcher) download(ctx context.Context, logger *slog.Logger, asset Asset, local string) (int64, error) {
	got, size, err := f.downloadOnce(ctx, asset, local)
	if err != nil {
		return 0, err
	}

	if !asset.Unverified && !asset.Token.Equal(got) {
		logger.Warn("downloaded content failed verification, retrying once",
			"want", asset.Token, "got", got)

		got, size, err = f.downloadOnce(ctx, asset, local)
		if err != nil {
			return 0, err
		}
		if !asset.Token.Equal(got) {
			// Leave nothing behind that would be trusted on the
			// next call.
			_ = os.Remove(local)
			return 0, &IntegrityError{Name: asset.Name, Want: asset.Token, Got: got}
		}
	}

	logger.Info("fetched asset", "url", asset.URL, "size", size, "token", got)
	f.record(asset.Name, size, got)
	return size, nil
}

// downloadOnce streams the origin response into a temporary file in the
// cache directory and atomically renames it into place, computing the
// content token along the way. The rename keeps partially-written files
// from ever being visible at the final path, and makes cross-process
// races on the same asset benign (last writer wins, both verified).
func (f *Fetcher) downloadOnce(ctx context.Context, asset Asset, local string) (Token, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return Token{}, 0, &FetchError{URL: asset.URL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Token{}, 0, &FetchError{URL: asset.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Token{}, 0, &FetchError{URL: asset.URL, Err: fmt.Errorf("origin returned %s", resp.Status)}
	}

	tmp, err := os.CreateTemp(f.root, ".tmp-*")
	if err != nil {
		return Token{}, 0, &StorageError{Path: f.root, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	alg := asset.Token.Alg
	if alg == "" {
		alg = AlgBLAKE3
	}
	hr := newHashingReader(alg, resp.Body)

	size, err := io.Copy(tmp, hr)
	if err != nil {
		// A short or broken body is a transport failure, not a local
		// storage one, unless the write side failed.
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return Token{}, 0, &StorageError{Path: tmpPath, Err: err}
		}
		return Token{}, 0, &FetchError{URL: asset.URL, Err: err}
	}

	if err := tmp.Sync(); err != nil {
		return Token{}, 0, &StorageError{Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return Token{}, 0, &StorageError{Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, local); err != nil {
		return Token{}, 0, &StorageError{Path: local, Err: err}
	}

	success = true
	return hr.token(), size, nil
}

func (f *Fetcher) touch(name string) {
	if f.meta == nil {
		return
	}
	if err := f.meta.Touch(name); err != nil {
		f.logger.Warn("updating metadata index", "asset", name, "error", err)
	}
}

func (f *Fetcher) record(name string, size int64, token Token) {
	if f.meta == nil {
		return
	}
	if err := f.meta.RecordFetch(name, size, token.String()); err != nil {
		f.logger.Warn("updating metadata index", "asset", name, "error", err)
	}
}

// localBasename derives the cache-relative filename for an asset from the
// final segment of its origin URL, falling back to the logical name.
func localBasename(asset Asset) string {
	u, err := url.Parse(asset.URL)
	if err != nil {
		return asset.Name
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return asset.Name
	}
	return base
}

// hashingReader computes a token over everything read through it.
type hashingReader struct {
	r   io.Reader
	alg Algorithm
	h   hash.Hash
}

func newHashingReader(alg Algorithm, r io.Reader) *hashingReader {
	return &hashingReader{r: r, alg: alg, h: Token{Alg: alg}.hasher()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n])
	}
	return n, err
}

func (hr *hashingReader) token() Token {
	return Token{Alg: hr.alg, Sum: hr.h.Sum(nil)}
}
