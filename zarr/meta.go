package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// consolidated is the store-level metadata document (".zmetadata"). It
// carries every array's metadata, so opening a store needs exactly one
// request.
type consolidated struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Format   int                        `json:"zarr_consolidated_format"`
}

// arrayMeta is one array's ".zarray" document.
type arrayMeta struct {
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	Dtype              string          `json:"dtype"`
	Compressor         *compressorMeta `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            json.RawMessage `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator"`
	ZarrFormat         int             `json:"zarr_format"`
}

type compressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// arrayAttrs is the subset of ".zattrs" the reader understands.
// _ARRAY_DIMENSIONS is the labeled-dimension convention the cubes are
// written with.
type arrayAttrs struct {
	Dimensions []string `json:"_ARRAY_DIMENSIONS"`
}

func (m *arrayMeta) validate(name string) error {
	if m.ZarrFormat != 2 {
		return fmt.Errorf("%w: array %s has zarr_format %d, expected 2", ErrLayout, name, m.ZarrFormat)
	}
	if len(m.Shape) == 0 || len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("%w: array %s has mismatched shape and chunks", ErrLayout, name)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("%w: array %s has invalid extent in dimension %d", ErrLayout, name, i)
		}
	}
	if m.Order != "C" {
		return fmt.Errorf("%w: array %s has order %q, only C order is supported", ErrLayout, name, m.Order)
	}
	if len(m.Filters) > 0 && string(m.Filters) != "null" && string(m.Filters) != "[]" {
		return fmt.Errorf("%w: array %s uses filters, which are not supported", ErrLayout, name)
	}
	return nil
}

func (m *arrayMeta) separator() string {
	if m.DimensionSeparator == "/" {
		return "/"
	}
	return "."
}

// fill returns the array's fill value as float64 and whether one is set.
func (m *arrayMeta) fill() (float64, bool, error) {
	raw := string(m.FillValue)
	switch raw {
	case "", "null":
		return 0, false, nil
	case `"NaN"`:
		return math.NaN(), true, nil
	case `"Infinity"`:
		return math.Inf(1), true, nil
	case `"-Infinity"`:
		return math.Inf(-1), true, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: unsupported fill_value %s", ErrLayout, raw)
	}
	return v, true, nil
}

// dtype is a parsed numpy-style type string such as "<i2" or ">f8".
type dtype struct {
	kind byte // 'i', 'u', 'f', 'b'
	size int
	big  bool
}

func parseDtype(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("%w: unsupported dtype %q", ErrLayout, s)
	}

	var dt dtype
	switch s[0] {
	case '<', '|', '=':
		// Little-endian and byte-order-free are both read as little.
	case '>':
		dt.big = true
	default:
		return dtype{}, fmt.Errorf("%w: unsupported byte order in dtype %q", ErrLayout, s)
	}

	switch s[1] {
	case 'i', 'u', 'f', 'b':
		dt.kind = s[1]
	default:
		return dtype{}, fmt.Errorf("%w: unsupported dtype kind in %q", ErrLayout, s)
	}

	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("%w: unsupported dtype %q", ErrLayout, s)
	}
	switch size {
	case 1, 2, 4, 8:
		dt.size = size
	default:
		return dtype{}, fmt.Errorf("%w: unsupported dtype size in %q", ErrLayout, s)
	}
	if dt.kind == 'f' && size < 4 {
		return dtype{}, fmt.Errorf("%w: unsupported dtype %q", ErrLayout, s)
	}
	if dt.kind == 'b' && size != 1 {
		return dtype{}, fmt.Errorf("%w: unsupported dtype %q", ErrLayout, s)
	}
	return dt, nil
}

// integer reports whether the dtype is an integer kind, the only kind the
// reflectance rescaling contract applies to.
func (dt dtype) integer() bool {
	return dt.kind == 'i' || dt.kind == 'u'
}

// decode converts one element at the given index of a raw chunk buffer.
// The int64 return carries the undecoded integer value for sentinel
// comparison; it is zero for float kinds.
func (dt dtype) decode(raw []byte, idx int) (float64, int64) {
	off := idx * dt.size

	var u uint64
	switch dt.size {
	case 1:
		u = uint64(raw[off])
	case 2:
		if dt.big {
			u = uint64(raw[off])<<8 | uint64(raw[off+1])
		} else {
			u = uint64(raw[off]) | uint64(raw[off+1])<<8
		}
	case 4:
		if dt.big {
			u = uint64(raw[off])<<24 | uint64(raw[off+1])<<16 | uint64(raw[off+2])<<8 | uint64(raw[off+3])
		} else {
			u = uint64(raw[off]) | uint64(raw[off+1])<<8 | uint64(raw[off+2])<<16 | uint64(raw[off+3])<<24
		}
	case 8:
		for i := 0; i < 8; i++ {
			shift := uint(i * 8)
			if dt.big {
				shift = uint((7 - i) * 8)
			}
			u |= uint64(raw[off+i]) << shift
		}
	}

	switch dt.kind {
	case 'u', 'b':
		return float64(u), int64(u)
	case 'i':
		// Sign-extend from the stored width.
		shift := uint(64 - dt.size*8)
		v := int64(u<<shift) >> shift
		return float64(v), v
	default: // 'f'
		if dt.size == 4 {
			return float64(math.Float32frombits(uint32(u))), 0
		}
		return math.Float64frombits(u), 0
	}
}
