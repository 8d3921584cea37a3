package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/landmonitor/sampledata/telemetry"
)

const testSentinel = -32768

// testValue is the stored value at (t, y, x) in the test store's ndvi
// array. The origin pixel holds the no-data sentinel.
func testValue(t, y, x int) int16 {
	if t == 0 && y == 0 && x == 0 {
		return testSentinel
	}
	return int16(t*100 + y*10 + x)
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func int16LE(vals []int16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

func float64LE(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

// buildTestStore returns the keys of an in-memory consolidated zarr
// store: an int16 "ndvi" array of shape (2, 4, 4) in (1, 2, 2) chunks
// with zlib compression, an int64 "time" coordinate, and an uncompressed
// uint8 "qa" array of which only the first chunk is stored.
func buildTestStore(t *testing.T) map[string][]byte {
	t.Helper()

	store := map[string][]byte{}

	meta := map[string]string{
		"ndvi/.zarray": fmt.Sprintf(`{
			"shape": [2, 4, 4], "chunks": [1, 2, 2], "dtype": "<i2",
			"compressor": {"id": "zlib", "level": 5},
			"fill_value": %d, "order": "C", "filters": null, "zarr_format": 2
		}`, testSentinel),
		"ndvi/.zattrs": `{"_ARRAY_DIMENSIONS": ["time", "y", "x"]}`,
		"time/.zarray": `{
			"shape": [2], "chunks": [2], "dtype": "<i8",
			"compressor": null,
			"fill_value": null, "order": "C", "filters": null, "zarr_format": 2
		}`,
		"time/.zattrs": `{"_ARRAY_DIMENSIONS": ["time"]}`,
		"qa/.zarray": `{
			"shape": [4, 4], "chunks": [2, 2], "dtype": "|u1",
			"compressor": null,
			"fill_value": 7, "order": "C", "filters": null, "zarr_format": 2
		}`,
	}

	var entries []string
	for key, doc := range meta {
		entries = append(entries, fmt.Sprintf("%q: %s", key, doc))
	}
	store[".zmetadata"] = []byte(fmt.Sprintf(
		`{"zarr_consolidated_format": 1, "metadata": {%s}}`,
		strings.Join(entries, ",")))

	// ndvi chunks, C order over the local (1, 2, 2) extent.
	for ct := 0; ct < 2; ct++ {
		for cy := 0; cy < 2; cy++ {
			for cx := 0; cx < 2; cx++ {
				vals := make([]int16, 0, 4)
				for ly := 0; ly < 2; ly++ {
					for lx := 0; lx < 2; lx++ {
						vals = append(vals, testValue(ct, cy*2+ly, cx*2+lx))
					}
				}
				key := fmt.Sprintf("ndvi/%d.%d.%d", ct, cy, cx)
				store[key] = zlibCompress(t, int16LE(vals))
			}
		}
	}

	store["time/0"] = []byte{0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0}

	// Only the top-left qa chunk exists; the rest read as the fill value.
	store["qa/0.0"] = []byte{1, 2, 3, 4}

	return store
}

// newTestServer serves a store map and records every requested key.
func newTestServer(t *testing.T, store map[string][]byte) (*httptest.Server, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var keys []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")

		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()

		data, ok := store[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	requested := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(keys))
		copy(out, keys)
		return out
	}
	return srv, requested
}

func TestOpenTransfersMetadataOnly(t *testing.T) {
	store := buildTestStore(t)
	srv, requested := newTestServer(t, store)

	transport := telemetry.NewCountingTransport(nil)
	client := &http.Client{Transport: transport}

	ds, err := Open(context.Background(), srv.URL, WithHTTPClient(client))
	require.NoError(t, err)

	require.Equal(t, []string{".zmetadata"}, requested())
	require.EqualValues(t, 1, transport.Requests())
	require.EqualValues(t, len(store[".zmetadata"]), transport.BytesRead())

	require.Equal(t, []string{"ndvi", "qa", "time"}, ds.Vars())
	require.Equal(t, map[string]int{"time": 2, "y": 4, "x": 4}, ds.Dims())

	a, err := ds.Var("ndvi")
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 4}, a.Shape())
	require.Equal(t, []int{1, 2, 2}, a.Chunks())
	require.Equal(t, []string{"time", "y", "x"}, a.Dims())
	require.Equal(t, "<i2", a.Dtype())
}

func TestReadSubsetFetchesIntersectingChunksOnly(t *testing.T) {
	srv, requested := newTestServer(t, buildTestStore(t))

	ds, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)

	a, err := ds.Var("ndvi")
	require.NoError(t, err)

	vals, shape, err := a.Read(context.Background(),
		Range{Start: 0, Stop: 1},
		Range{Start: 1, Stop: 3},
		Range{Start: 1, Stop: 3})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, shape)

	require.Equal(t, []float64{11, 12, 21, 22}, vals)

	require.ElementsMatch(t, []string{
		".zmetadata",
		"ndvi/0.0.0", "ndvi/0.0.1", "ndvi/0.1.0", "ndvi/0.1.1",
	}, requested())
}

func TestReadFullArray(t *testing.T) {
	srv, _ := newTestServer(t, buildTestStore(t))

	ds, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)

	a, err := ds.Var("ndvi")
	require.NoError(t, err)

	vals, shape, err := a.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 4}, shape)
	require.Len(t, vals, 32)

	for ti := 0; ti < 2; ti++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				require.Equal(t, float64(testValue(ti, y, x)), vals[ti*16+y*4+x],
					"value at (%d, %d, %d)", ti, y, x)
			}
		}
	}
}

func TestIntScaling(t *testing.T) {
	srv, _ := newTestServer(t, buildTestStore(t))

	ds, err := Open(context.Background(), srv.URL,
		WithIntScaling(1e-4, testSentinel))
	require.NoError(t, err)

	a, err := ds.Var("ndvi")
	require.NoError(t, err)

	vals, _, err := a.Read(context.Background(),
		Range{Start: 0, Stop: 1},
		Range{Start: 0, Stop: 2},
		Range{Start: 0, Stop: 2})
	require.NoError(t, err)

	// The origin pixel stores the sentinel and must surface as NaN.
	require.True(t, math.IsNaN(vals[0]))
	require.InDelta(t, 1e-4, vals[1], 1e-12)
	require.InDelta(t, 10e-4, vals[2], 1e-12)
	require.InDelta(t, 11e-4, vals[3], 1e-12)
}

func TestScalingSkipsFloatArrays(t *testing.T) {
	store := map[string][]byte{
		".zmetadata": []byte(`{"zarr_consolidated_format": 1, "metadata": {
			"evi/.zarray": {
				"shape": [2], "chunks": [2], "dtype": "<f8",
				"compressor": null,
				"fill_value": null, "order": "C", "filters": null, "zarr_format": 2
			}
		}}`),
		"evi/0": float64LE([]float64{0.5, 1.5}),
	}
	srv, _ := newTestServer(t, store)

	ds, err := Open(context.Background(), srv.URL,
		WithIntScaling(1e-4, testSentinel))
	require.NoError(t, err)

	a, err := ds.Var("evi")
	require.NoError(t, err)

	// Rescaling applies to integer-typed arrays only.
	vals, _, err := a.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 1.5}, vals)
}

func TestMissingChunkReadsAsFill(t *testing.T) {
	srv, _ := newTestServer(t, buildTestStore(t))

	ds, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)

	a, err := ds.Var("qa")
	require.NoError(t, err)

	vals, shape, err := a.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{4, 4}, shape)

	// The stored chunk covers rows 0-1, columns 0-1.
	require.Equal(t, 1.0, vals[0*4+0])
	require.Equal(t, 2.0, vals[0*4+1])
	require.Equal(t, 3.0, vals[1*4+0])
	require.Equal(t, 4.0, vals[1*4+1])

	// Every pixel outside it reads as the fill value.
	require.Equal(t, 7.0, vals[0*4+2])
	require.Equal(t, 7.0, vals[2*4+0])
	require.Equal(t, 7.0, vals[3*4+3])
}

func TestReadSelectionValidation(t *testing.T) {
	srv, _ := newTestServer(t, buildTestStore(t))

	ds, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)

	a, err := ds.Var("ndvi")
	require.NoError(t, err)

	_, _, err = a.Read(context.Background(), Range{Start: 0, Stop: 1})
	require.ErrorContains(t, err, "selection has 1 ranges")

	_, _, err = a.Read(context.Background(),
		Range{Start: 0, Stop: 1},
		Range{Start: 0, Stop: 5},
		Range{Start: 0, Stop: 1})
	require.ErrorContains(t, err, "out of bounds")

	_, _, err = a.Read(context.Background(),
		Range{Start: 1, Stop: 1},
		Range{Start: 0, Stop: 1},
		Range{Start: 0, Stop: 1})
	require.ErrorContains(t, err, "out of bounds")
}

func TestOpenNoConsolidatedMetadata(t *testing.T) {
	srv, _ := newTestServer(t, map[string][]byte{})

	_, err := Open(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrLayout)
	require.ErrorContains(t, err, "no consolidated metadata")
}

func TestOpenUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t, map[string][]byte{
		".zmetadata": []byte(`{"zarr_consolidated_format": 2, "metadata": {}}`),
	})

	_, err := Open(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrLayout)
}

func TestOpenServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := Open(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrTransport)
}

func TestParseDtype(t *testing.T) {
	for _, s := range []string{"<i2", ">i4", "<f8", "<f4", "|u1", "<u2", "|b1", "=i8"} {
		_, err := parseDtype(s)
		require.NoError(t, err, s)
	}
	for _, s := range []string{"", "i2", "<f2", "<x4", "<i3", "|b2"} {
		_, err := parseDtype(s)
		require.ErrorIs(t, err, ErrLayout, s)
	}
}

func TestDtypeDecodeSignExtension(t *testing.T) {
	dt, err := parseDtype("<i2")
	require.NoError(t, err)

	v, stored := dt.decode(int16LE([]int16{-32768}), 0)
	require.Equal(t, float64(testSentinel), v)
	require.EqualValues(t, testSentinel, stored)

	v, stored = dt.decode(int16LE([]int16{-1, 42}), 1)
	require.Equal(t, 42.0, v)
	require.EqualValues(t, 42, stored)
}
