// Package sampledata provides access to the sample datasets used by the
// land-monitoring analysis toolkit: two Sentinel-2 test cubes, an ancillary
// tree-cover raster, a table of precomputed critical values, and a large
// remotely-hosted cube that is opened lazily.
//
// Cached datasets are fetched once from their remote origin, verified
// against a registered integrity token, and stored under a per-user cache
// directory. Subsequent calls reuse the verified local copy.
//
//	cube, err := sampledata.Romania10m(ctx)
//	if err != nil {
//		return err
//	}
//	defer cube.Close()
//
// The remote cube bypasses the cache entirely and transfers only metadata
// on open; chunk payloads are fetched when a subset is read.
package sampledata
