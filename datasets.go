package sampledata

import (
	"context"
	"errors"
	"sync"

	"github.com/landmonitor/sampledata/crit"
	"github.com/landmonitor/sampledata/cube"
	"github.com/landmonitor/sampledata/raster"
	"github.com/landmonitor/sampledata/zarr"
)

// Rescaling contract of the remote cube: reflectances are stored as
// scaled integers with a no-data sentinel.
const (
	remoteCubeScale  = 1e-4
	remoteCubeNoData = -32768
)

var (
	defaultOnce    sync.Once
	defaultFetcher *Fetcher
	defaultErr     error
)

// Default returns the shared Fetcher over the built-in registry and the
// user-level cache directory. It is created on first use.
func Default() (*Fetcher, error) {
	defaultOnce.Do(func() {
		defaultFetcher, defaultErr = NewFetcher()
	})
	return defaultFetcher, defaultErr
}

// Romania10m returns the Sentinel-2 datacube of a small forested area in
// Romania at 10 m resolution, fetching it into the local cache on first
// use. Options are forwarded to the cube reader.
//
//	c, err := sampledata.Romania10m(ctx)
//	// NDVI from the B8 and B4 reflectance bands:
//	b8, _ := c.Var("B8")
//	b4, _ := c.Var("B4")
func Romania10m(ctx context.Context, opts ...cube.Option) (*cube.Cube, error) {
	return openCube(ctx, AssetRomania10m, opts)
}

// Romania20m returns the same area at 20 m resolution.
func Romania20m(ctx context.Context, opts ...cube.Option) (*cube.Cube, error) {
	return openCube(ctx, AssetRomania20m, opts)
}

func openCube(ctx context.Context, name string, opts []cube.Option) (*cube.Cube, error) {
	f, err := Default()
	if err != nil {
		return nil, err
	}
	ds, err := f.Open(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return ds.Cube, nil
}

// RomaniaForestCoverPercentage returns the Copernicus HR tree cover
// density subset over the Romania test area as an in-memory grid.
func RomaniaForestCoverPercentage(ctx context.Context) (*raster.Grid, error) {
	f, err := Default()
	if err != nil {
		return nil, err
	}
	ds, err := f.Open(ctx, AssetRomaniaForestCover)
	if err != nil {
		return nil, err
	}
	return ds.Grid, nil
}

// MreCritTable returns the moving-sums critical value table shipped with
// the module. The document is re-parsed on every call.
func MreCritTable() (*crit.Table, error) {
	t, err := crit.LoadDefault()
	if err != nil {
		return nil, &DecodeError{Path: "mre_crit_val_table.json", Err: err}
	}
	return t, nil
}

// OpenRemoteStore opens a chunked multi-dimensional dataset directly from
// a remote store without copying it to local storage. Only metadata is
// transferred; chunk payloads are fetched when the caller reads a subset.
func OpenRemoteStore(ctx context.Context, url string, opts ...zarr.Option) (*zarr.Dataset, error) {
	ds, err := zarr.Open(ctx, url, opts...)
	if err != nil {
		return nil, wrapZarrErr(url, err)
	}
	return ds, nil
}

// RomaniaZarr opens the large remotely-hosted Sentinel-2 cube over the
// Romania area. Integer reflectance bands are rescaled to physical units
// and the no-data sentinel reads as NaN.
func RomaniaZarr(ctx context.Context, opts ...zarr.Option) (*zarr.Dataset, error) {
	all := append([]zarr.Option{
		zarr.WithIntScaling(remoteCubeScale, remoteCubeNoData),
	}, opts...)
	return OpenRemoteStore(ctx, DefaultRemoteCubeURL, all...)
}

func wrapZarrErr(url string, err error) error {
	if errors.Is(err, zarr.ErrLayout) {
		return &DecodeError{Path: url, Err: err}
	}
	return &FetchError{URL: url, Err: err}
}
