package zarr

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Range selects the half-open interval [Start, Stop) along one dimension.
type Range struct {
	Start int
	Stop  int
}

// Array is one named array of a remote store. Its shape, chunking, and
// dimension labels are known from the store metadata; values are fetched
// chunk by chunk when Read is called.
type Array struct {
	ds      *Dataset
	name    string
	meta    arrayMeta
	dt      dtype
	dims    []string
	sep     string
	fill    float64
	hasFill bool
	scaled  bool
}

// Name returns the array name.
func (a *Array) Name() string {
	return a.name
}

// Shape returns the array's extent per dimension.
func (a *Array) Shape() []int {
	out := make([]int, len(a.meta.Shape))
	copy(out, a.meta.Shape)
	return out
}

// Chunks returns the chunk extent per dimension.
func (a *Array) Chunks() []int {
	out := make([]int, len(a.meta.Chunks))
	copy(out, a.meta.Chunks)
	return out
}

// Dims returns the array's dimension labels, or nil when the store
// carries none.
func (a *Array) Dims() []string {
	if a.dims == nil {
		return nil
	}
	out := make([]string, len(a.dims))
	copy(out, a.dims)
	return out
}

// Dtype returns the array's stored type string.
func (a *Array) Dtype() string {
	return a.meta.Dtype
}

// Read materializes a subset of the array, transferring only the chunks
// that intersect the selection. With no ranges the full array is read;
// otherwise one Range per dimension is required. Values are returned
// flattened in C order together with the selection's shape.
//
// For integer arrays of a store opened with WithIntScaling, stored
// sentinel values become NaN and all other values are multiplied by the
// scale factor. Chunks absent from the store read as the array's fill
// value.
func (a *Array) Read(ctx context.Context, sel ...Range) ([]float64, []int, error) {
	rank := len(a.meta.Shape)

	if len(sel) == 0 {
		sel = make([]Range, rank)
		for d := range sel {
			sel[d] = Range{Start: 0, Stop: a.meta.Shape[d]}
		}
	}
	if len(sel) != rank {
		return nil, nil, fmt.Errorf("selection has %d ranges, array %s has %d dimensions", len(sel), a.name, rank)
	}
	for d, r := range sel {
		if r.Start < 0 || r.Stop > a.meta.Shape[d] || r.Start >= r.Stop {
			return nil, nil, fmt.Errorf("selection [%d, %d) out of bounds for dimension %d of array %s (extent %d)",
				r.Start, r.Stop, d, a.name, a.meta.Shape[d])
		}
	}

	outShape := make([]int, rank)
	outLen := 1
	for d, r := range sel {
		outShape[d] = r.Stop - r.Start
		outLen *= outShape[d]
	}

	out := make([]float64, outLen)
	if a.hasFill {
		// Missing chunks read as the fill value; prefill so they need
		// no transfer at all.
		fill := a.fill
		if a.scaled {
			fill = a.scaleValue(a.fill, int64(a.fill))
		}
		if fill != 0 {
			for i := range out {
				out[i] = fill
			}
		}
	}

	outStrides := cStrides(outShape)
	chunkStrides := cStrides(a.meta.Chunks)

	// Walk the grid of chunks intersecting the selection.
	first := make([]int, rank)
	last := make([]int, rank)
	for d, r := range sel {
		first[d] = r.Start / a.meta.Chunks[d]
		last[d] = (r.Stop - 1) / a.meta.Chunks[d]
	}

	coords := make([]int, rank)
	copy(coords, first)
	for {
		if err := a.readChunk(ctx, coords, sel, out, outStrides, chunkStrides); err != nil {
			return nil, nil, err
		}
		if !increment(coords, first, last) {
			break
		}
	}

	return out, outShape, nil
}

// readChunk fetches the chunk at the given grid coordinates and copies
// the part intersecting the selection into out.
func (a *Array) readChunk(ctx context.Context, coords []int, sel []Range, out []float64, outStrides, chunkStrides []int) error {
	key := a.chunkKey(coords)

	raw, found, err := a.ds.get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		if !a.hasFill {
			return fmt.Errorf("%w: chunk %s is missing and array has no fill value", ErrLayout, key)
		}
		// The selection was prefilled with the fill value.
		return nil
	}

	data, err := decompress(a.meta.Compressor, raw)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", key, err)
	}

	elems := 1
	for _, c := range a.meta.Chunks {
		elems *= c
	}
	if len(data) != elems*a.dt.size {
		return fmt.Errorf("%w: chunk %s has %d bytes, expected %d", ErrLayout, key, len(data), elems*a.dt.size)
	}

	// Intersection of the selection with this chunk, in array coordinates.
	rank := len(coords)
	lo := make([]int, rank)
	hi := make([]int, rank)
	for d := range coords {
		lo[d] = max(sel[d].Start, coords[d]*a.meta.Chunks[d])
		hi[d] = min(sel[d].Stop, (coords[d]+1)*a.meta.Chunks[d])
	}

	// Copy row by row: the innermost dimension is contiguous in both the
	// chunk and the output buffer.
	lastD := rank - 1
	pos := make([]int, rank)
	copy(pos, lo)
	for {
		srcBase := lo[lastD] - coords[lastD]*a.meta.Chunks[lastD]
		dstBase := lo[lastD] - sel[lastD].Start
		for d := 0; d < lastD; d++ {
			srcBase += (pos[d] - coords[d]*a.meta.Chunks[d]) * chunkStrides[d]
			dstBase += (pos[d] - sel[d].Start) * outStrides[d]
		}

		for k := 0; k < hi[lastD]-lo[lastD]; k++ {
			v, stored := a.dt.decode(data, srcBase+k)
			if a.scaled {
				v = a.scaleValue(v, stored)
			}
			out[dstBase+k] = v
		}

		advanced := false
		for d := lastD - 1; d >= 0; d-- {
			pos[d]++
			if pos[d] < hi[d] {
				advanced = true
				break
			}
			pos[d] = lo[d]
		}
		if !advanced {
			break
		}
	}
	return nil
}

func cStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}
	return strides
}

// increment advances an odometer over the inclusive box [first, last].
// It returns false once the odometer wraps past last.
func increment(coords, first, last []int) bool {
	for d := len(coords) - 1; d >= 0; d-- {
		coords[d]++
		if coords[d] <= last[d] {
			return true
		}
		coords[d] = first[d]
	}
	return false
}

// scaleValue applies the integer rescaling contract to one stored value.
func (a *Array) scaleValue(v float64, stored int64) float64 {
	if stored == a.ds.sentinel {
		return math.NaN()
	}
	return v * a.ds.scale
}

// chunkKey builds the store key for a chunk, e.g. "B04/0.2.1".
func (a *Array) chunkKey(coords []int) string {
	parts := make([]string, len(coords))
	for d, c := range coords {
		parts[d] = strconv.Itoa(c)
	}
	return a.name + "/" + strings.Join(parts, a.sep)
}
