// Package cube reads the gridded multi-band time series used as sample
// datasets. Cubes are netCDF-4 files, which are HDF5 containers: each
// variable is a 3-D dataset over the (time, y, x) dimensions, and each
// dimension has a 1-D coordinate dataset marked as a dimension scale.
//
// Opening a cube reads dimension and coordinate metadata only; pixel
// values are read per variable when the caller asks for them.
package cube

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/go-hdf5/hdf5"
)

// Dimension names every cube carries, in storage order.
const (
	DimTime = "time"
	DimY    = "y"
	DimX    = "x"
)

// Dim is a named dimension and its length.
type Dim struct {
	Name string
	Len  int
}

// Coords holds the cube's coordinate arrays. Time is decoded from the
// coordinate's epoch-based units attribute; TimeRaw keeps the stored
// numeric values.
type Coords struct {
	Time    []time.Time
	TimeRaw []float64
	Y       []float64
	X       []float64
}

// Cube is an open multi-band time series. It keeps the underlying file
// open so variable reads stay lazy; callers must Close it.
type Cube struct {
	f      *hdf5.File
	path   string
	dims   []Dim
	coords Coords
	vars   map[string]*Var
}

// Var is one named data variable of a cube. Values are not read until
// Read is called.
type Var struct {
	name  string
	ds    *hdf5.Dataset
	dims  []string
	shape []int
}

// Option configures Open.
type Option func(*options)

type options struct {
	variables []string
	rawTime   bool
}

// WithVariables restricts the cube to the named data variables. Unknown
// names fail Open.
func WithVariables(names ...string) Option {
	return func(o *options) {
		o.variables = names
	}
}

// WithRawTime disables decoding of the time coordinate into timestamps;
// only Coords.TimeRaw is populated.
func WithRawTime() Option {
	return func(o *options) {
		o.rawTime = true
	}
}

// Open opens a cube file and reads its dimension, coordinate, and
// variable metadata.
func Open(path string, opts ...Option) (*Cube, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}

	c, err := build(f, path, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

func build(f *hdf5.File, path string, o options) (*Cube, error) {
	members, err := f.Root().Members()
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	dimLens := map[string]int{}
	coordSets := map[string]*hdf5.Dataset{}
	var dataSets []*hdf5.Dataset

	for _, name := range members {
		ds, err := f.OpenDataset(name)
		if err != nil {
			// Groups and non-dataset objects carry no cube data.
			continue
		}
		if isDimensionScale(ds) {
			if ds.Rank() != 1 {
				return nil, fmt.Errorf("dimension scale %s has rank %d, expected 1", name, ds.Rank())
			}
			dimLens[name] = int(ds.Shape()[0])
			coordSets[name] = ds
			continue
		}
		dataSets = append(dataSets, ds)
	}

	for _, dim := range []string{DimTime, DimY, DimX} {
		if _, ok := dimLens[dim]; !ok {
			return nil, fmt.Errorf("missing %s coordinate", dim)
		}
	}

	coords, err := readCoords(coordSets, o.rawTime)
	if err != nil {
		return nil, err
	}

	shape := []int{dimLens[DimTime], dimLens[DimY], dimLens[DimX]}
	vars := map[string]*Var{}
	for _, ds := range dataSets {
		if !shapeMatches(ds, shape) {
			// Ancillary objects such as grid mapping variables are
			// not data variables.
			continue
		}
		vars[ds.Name()] = &Var{
			name:  ds.Name(),
			ds:    ds,
			dims:  []string{DimTime, DimY, DimX},
			shape: shape,
		}
	}

	if len(o.variables) > 0 {
		selected := map[string]*Var{}
		for _, name := range o.variables {
			v, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("no variable %q in cube", name)
			}
			selected[name] = v
		}
		vars = selected
	}

	return &Cube{
		f:    f,
		path: path,
		dims: []Dim{
			{Name: DimTime, Len: shape[0]},
			{Name: DimY, Len: shape[1]},
			{Name: DimX, Len: shape[2]},
		},
		coords: coords,
		vars:   vars,
	}, nil
}

// Close closes the underlying file. Variable reads fail afterwards.
func (c *Cube) Close() error {
	return c.f.Close()
}

// Path returns the local file the cube was opened from.
func (c *Cube) Path() string {
	return c.path
}

// Dims returns the cube's dimensions in storage order (time, y, x).
func (c *Cube) Dims() []Dim {
	out := make([]Dim, len(c.dims))
	copy(out, c.dims)
	return out
}

// Coords returns the cube's coordinate arrays.
func (c *Cube) Coords() Coords {
	return c.coords
}

// Vars returns the names of the cube's data variables in sorted order.
func (c *Cube) Vars() []string {
	names := make([]string, 0, len(c.vars))
	for name := range c.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Var returns a data variable by name.
func (c *Cube) Var(name string) (*Var, error) {
	v, ok := c.vars[name]
	if !ok {
		return nil, fmt.Errorf("no variable %q in cube", name)
	}
	return v, nil
}

// Name returns the variable name.
func (v *Var) Name() string {
	return v.name
}

// Dims returns the variable's dimension names in storage order.
func (v *Var) Dims() []string {
	out := make([]string, len(v.dims))
	copy(out, v.dims)
	return out
}

// Shape returns the variable's extent per dimension.
func (v *Var) Shape() []int {
	out := make([]int, len(v.shape))
	copy(out, v.shape)
	return out
}

// Read loads the variable's values into memory, flattened in C order
// over (time, y, x), converted to float64.
func (v *Var) Read() ([]float64, error) {
	vals, err := readFloats(v.ds)
	if err != nil {
		return nil, fmt.Errorf("reading variable %s: %w", v.name, err)
	}
	return vals, nil
}

func isDimensionScale(ds *hdf5.Dataset) bool {
	attr := ds.Attr("CLASS")
	if attr == nil {
		return false
	}
	class, err := attr.ReadScalarString()
	if err != nil {
		return false
	}
	return strings.TrimRight(class, "\x00") == "DIMENSION_SCALE"
}

func shapeMatches(ds *hdf5.Dataset, shape []int) bool {
	dims := ds.Shape()
	if len(dims) != len(shape) {
		return false
	}
	for i, d := range dims {
		if int(d) != shape[i] {
			return false
		}
	}
	return true
}

func readCoords(coordSets map[string]*hdf5.Dataset, rawTime bool) (Coords, error) {
	var coords Coords
	var err error

	if coords.Y, err = readFloats(coordSets[DimY]); err != nil {
		return Coords{}, fmt.Errorf("reading y coordinate: %w", err)
	}
	if coords.X, err = readFloats(coordSets[DimX]); err != nil {
		return Coords{}, fmt.Errorf("reading x coordinate: %w", err)
	}

	timeDS := coordSets[DimTime]
	if coords.TimeRaw, err = readFloats(timeDS); err != nil {
		return Coords{}, fmt.Errorf("reading time coordinate: %w", err)
	}

	if rawTime {
		return coords, nil
	}

	epoch, step, err := timeUnits(timeDS)
	if err != nil {
		return Coords{}, fmt.Errorf("decoding time coordinate: %w", err)
	}
	coords.Time = make([]time.Time, len(coords.TimeRaw))
	for i, v := range coords.TimeRaw {
		coords.Time[i] = epoch.Add(time.Duration(v * float64(step)))
	}
	return coords, nil
}

// timeUnits parses the CF-style units attribute of the time coordinate,
// e.g. "days since 2015-06-03".
func timeUnits(ds *hdf5.Dataset) (time.Time, time.Duration, error) {
	attr := ds.Attr("units")
	if attr == nil {
		return time.Time{}, 0, fmt.Errorf("time coordinate has no units attribute")
	}
	units, err := attr.ReadScalarString()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("reading units attribute: %w", err)
	}
	units = strings.TrimRight(units, "\x00")

	unit, stamp, ok := strings.Cut(units, " since ")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("unsupported time units %q", units)
	}

	var step time.Duration
	switch strings.TrimSpace(unit) {
	case "days":
		step = 24 * time.Hour
	case "hours":
		step = time.Hour
	case "minutes":
		step = time.Minute
	case "seconds":
		step = time.Second
	default:
		return time.Time{}, 0, fmt.Errorf("unsupported time unit %q", unit)
	}

	stamp = strings.TrimSpace(stamp)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if epoch, err := time.Parse(layout, stamp); err == nil {
			return epoch.UTC(), step, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("unsupported time epoch %q", stamp)
}

// readFloats reads a dataset of any supported numeric type, converted to
// float64 and flattened in C order.
func readFloats(ds *hdf5.Dataset) ([]float64, error) {
	t, err := ds.GoType()
	if err != nil {
		return nil, fmt.Errorf("resolving element type: %w", err)
	}

	switch t.Kind() {
	case reflect.Float64:
		return ds.ReadFloat64()
	case reflect.Float32:
		vals, err := ds.ReadFloat32()
		return toFloat64(vals, err)
	case reflect.Int64:
		vals, err := ds.ReadInt64()
		return toFloat64(vals, err)
	case reflect.Int32:
		vals, err := ds.ReadInt32()
		return toFloat64(vals, err)
	case reflect.Int16:
		vals, err := ds.ReadInt16()
		return toFloat64(vals, err)
	case reflect.Int8:
		vals, err := ds.ReadInt8()
		return toFloat64(vals, err)
	case reflect.Uint64:
		vals, err := ds.ReadUint64()
		return toFloat64(vals, err)
	case reflect.Uint32:
		vals, err := ds.ReadUint32()
		return toFloat64(vals, err)
	case reflect.Uint16:
		vals, err := ds.ReadUint16()
		return toFloat64(vals, err)
	case reflect.Uint8:
		vals, err := ds.ReadUint8()
		return toFloat64(vals, err)
	default:
		return nil, fmt.Errorf("unsupported element type %s", t.Kind())
	}
}

type number interface {
	~float32 | ~int64 | ~int32 | ~int16 | ~int8 | ~uint64 | ~uint32 | ~uint16 | ~uint8
}

func toFloat64[T number](vals []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out, nil
}
