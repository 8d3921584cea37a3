package sampledata

import (
	"log/slog"

	"github.com/landmonitor/sampledata/simulate"
)

// deprecated emits the non-fatal notice for a relocated function. The
// call still succeeds with full delegation.
func deprecated(old, replacement string) {
	slog.Warn("call to deprecated function", "old", old, "new", replacement)
}

// MakeTS simulates a single time series.
//
// Deprecated: MakeTS has moved to the simulate package; call
// simulate.MakeTS instead. This forwarding shim will be removed in a
// future release.
func MakeTS(p simulate.TSParams) simulate.TS {
	deprecated("sampledata.MakeTS", "simulate.MakeTS")
	return simulate.MakeTS(p)
}

// MakeCubeParameters returns default simulation parameters for a cube.
//
// Deprecated: MakeCubeParameters has moved to the simulate package; call
// simulate.MakeCubeParameters instead. This forwarding shim will be
// removed in a future release.
func MakeCubeParameters(ny, nx int, seed int64) simulate.CubeParams {
	deprecated("sampledata.MakeCubeParameters", "simulate.MakeCubeParameters")
	return simulate.MakeCubeParameters(ny, nx, seed)
}

// MakeCube simulates a data cube.
//
// Deprecated: MakeCube has moved to the simulate package; call
// simulate.MakeCube instead. This forwarding shim will be removed in a
// future release.
func MakeCube(p simulate.CubeParams) *simulate.Cube {
	deprecated("sampledata.MakeCube", "simulate.MakeCube")
	return simulate.MakeCube(p)
}
