package sampledata

import (
	"fmt"
	"sort"
)

// Kind identifies which decoder an asset routes to.
type Kind int

const (
	// KindCube is a gridded multi-band time series stored in a netCDF-4
	// container (dimensions time, y, x; multiple named variables).
	KindCube Kind = iota + 1

	// KindRaster is a small single-band GeoTIFF read fully into memory.
	KindRaster
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCube:
		return "multi-band cube"
	case KindRaster:
		return "single-band raster"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Asset describes a registered sample dataset: where to fetch it from,
// how to verify it, and which decoder reads it.
type Asset struct {
	// Name is the stable logical identifier callers use to request the
	// dataset, decoupled from its storage location.
	Name string

	// URL is the remote origin the asset is downloaded from.
	URL string

	// Token is the expected integrity token of the asset's byte content.
	// It may be zero only when Unverified is set.
	Token Token

	// Unverified marks an asset that is intentionally fetched without
	// integrity verification. Verification is mandatory unless the
	// registry author opts out explicitly.
	Unverified bool

	// Kind selects the decoder for the fetched file.
	Kind Kind
}

// Registry is an immutable mapping from logical asset names to their
// descriptors. It is constructed once and never mutated, so it is safe for
// concurrent use.
type Registry struct {
	assets map[string]Asset
}

// NewRegistry builds a registry from the given assets. It fails if a name
// is duplicated, a URL is empty, a kind is missing, or an asset carries
// neither an integrity token nor an explicit Unverified opt-out.
func NewRegistry(assets ...Asset) (*Registry, error) {
	m := make(map[string]Asset, len(assets))
	for _, a := range assets {
		if a.Name == "" {
			return nil, fmt.Errorf("asset with empty name")
		}
		if _, ok := m[a.Name]; ok {
			return nil, fmt.Errorf("duplicate asset name %q", a.Name)
		}
		if a.URL == "" {
			return nil, fmt.Errorf("asset %q has no remote URL", a.Name)
		}
		if a.Kind != KindCube && a.Kind != KindRaster {
			return nil, fmt.Errorf("asset %q has no decoder kind", a.Name)
		}
		if a.Token.IsZero() && !a.Unverified {
			return nil, fmt.Errorf("asset %q has no integrity token; set Unverified to opt out of verification", a.Name)
		}
		m[a.Name] = a
	}
	return &Registry{assets: m}, nil
}

// MustNewRegistry is like NewRegistry but panics on error. Intended for
// static registries defined at init time.
func MustNewRegistry(assets ...Asset) *Registry {
	r, err := NewRegistry(assets...)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether a logical name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.assets[name]
	return ok
}

// Get returns the descriptor for a logical name, or ErrUnknownAsset.
func (r *Registry) Get(name string) (Asset, error) {
	a, ok := r.assets[name]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	return a, nil
}

// Names returns all registered logical names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.assets))
	for name := range r.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Logical names of the built-in sample datasets.
const (
	// AssetRomania10m is a Sentinel-2 datacube of a small forested area
	// in Romania at 10 m resolution.
	AssetRomania10m = "romania_10m"

	// AssetRomania20m is the same area at 20 m resolution.
	AssetRomania20m = "romania_20m"

	// AssetRomaniaForestCover is a subset of the Copernicus HR tree cover
	// density layer (20 m, 2018) over the same area.
	AssetRomaniaForestCover = "romania_forest_cover_percentage"
)

// baseURL is the fixed remote origin prefix for the built-in assets.
const baseURL = "https://data.landmonitor.dev/samples/"

// DefaultRemoteCubeURL is the address of the large remotely-hosted
// Sentinel-2 cube, opened lazily and never copied to local storage.
const DefaultRemoteCubeURL = "https://data.landmonitor.dev/cubes/sentinel2_romania_20m.zarr"

// DefaultRegistry returns the built-in asset registry. Each call returns
// the same immutable registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

var defaultRegistry = MustNewRegistry(
	Asset{
		Name:  AssetRomania10m,
		URL:   baseURL + "sentinel2_cube_subset_romania_10m.nc",
		Token: MustParseToken("sha256:6e13fd6e5eae9d3ba11ae6e6b9b35ab19fc8f70f4fbc4d1e7bd35fcb021ebd8d"),
		Kind:  KindCube,
	},
	Asset{
		Name:  AssetRomania20m,
		URL:   baseURL + "sentinel2_cube_subset_romania_20m.nc",
		Token: MustParseToken("sha256:2763aeb1b4d48c4c10c697b1b7b7e4e71edc0abb4bfeca3357edbc78f4e59fd2"),
		Kind:  KindCube,
	},
	Asset{
		Name:  AssetRomaniaForestCover,
		URL:   baseURL + "tree_cover_density_2018_romania.tif",
		Token: MustParseToken("sha256:9aa9e4a2f3c4b6b841bc7a87d6b9e16262cd0a4e90b0e85ac8e1788cfb0e88d9"),
		Kind:  KindRaster,
	},
)
