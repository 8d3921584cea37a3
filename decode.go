package sampledata

import (
	"context"
	"fmt"

	"github.com/landmonitor/sampledata/cube"
	"github.com/landmonitor/sampledata/raster"
)

// Dataset is the decoded representation of a fetched asset: a tagged
// union over the supported kinds. Exactly one of Cube and Grid is set,
// matching Kind.
type Dataset struct {
	Kind Kind
	Cube *cube.Cube
	Grid *raster.Grid
}

// Close releases the resources of the underlying reader. Grids are plain
// in-memory arrays and need no release.
func (d *Dataset) Close() error {
	if d.Cube != nil {
		return d.Cube.Close()
	}
	return nil
}

// Decode routes a local file to the reader for its kind. The options are
// forwarded to the cube reader and have no effect on rasters, which are
// always read fully into memory.
func Decode(path string, kind Kind, opts ...cube.Option) (*Dataset, error) {
	switch kind {
	case KindCube:
		c, err := cube.Open(path, opts...)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		return &Dataset{Kind: kind, Cube: c}, nil
	case KindRaster:
		g, err := raster.Read(path)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		return &Dataset{Kind: kind, Grid: g}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// Open fetches an asset and decodes it with the kind its registry entry
// declares.
func (f *Fetcher) Open(ctx context.Context, name string, opts ...cube.Option) (*Dataset, error) {
	asset, err := f.registry.Get(name)
	if err != nil {
		return nil, err
	}
	path, err := f.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(path, asset.Kind, opts...)
}
