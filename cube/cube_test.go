package cube

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robert-malhotra/go-hdf5/hdf5"
	"github.com/stretchr/testify/require"
)

// writeTestCube builds a small netCDF-4-shaped container: three coordinate
// datasets marked as dimension scales, two (time, y, x) data variables,
// and one ancillary scalar that must not surface as a variable.
func writeTestCube(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cube.nc")
	f, err := hdf5.Create(path)
	require.NoError(t, err)

	root := f.Root()

	_, err = root.CreateDataset("time", []int32{0, 5, 10, 15},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"),
		hdf5.WithAttribute("units", "days since 2018-01-01"))
	require.NoError(t, err)

	_, err = root.CreateDataset("y", []float64{300, 280, 260},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"))
	require.NoError(t, err)

	_, err = root.CreateDataset("x", []float64{500, 520},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"))
	require.NoError(t, err)

	ndvi := make([][][]int16, 4)
	for ti := range ndvi {
		ndvi[ti] = make([][]int16, 3)
		for row := range ndvi[ti] {
			ndvi[ti][row] = make([]int16, 2)
			for col := range ndvi[ti][row] {
				ndvi[ti][row][col] = int16(ti*100 + row*10 + col)
			}
		}
	}
	_, err = root.CreateDataset("ndvi", ndvi)
	require.NoError(t, err)

	evi := make([][][]float64, 4)
	for ti := range evi {
		evi[ti] = make([][]float64, 3)
		for row := range evi[ti] {
			evi[ti][row] = make([]float64, 2)
			for col := range evi[ti][row] {
				evi[ti][row][col] = float64(ti) + 0.5
			}
		}
	}
	_, err = root.CreateDataset("evi", evi)
	require.NoError(t, err)

	_, err = root.CreateDataset("spatial_ref", []int32{0})
	require.NoError(t, err)

	require.NoError(t, f.Close())
	return path
}

func TestOpen(t *testing.T) {
	c, err := Open(writeTestCube(t))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.Equal(t, []Dim{
		{Name: DimTime, Len: 4},
		{Name: DimY, Len: 3},
		{Name: DimX, Len: 2},
	}, c.Dims())

	require.Equal(t, []string{"evi", "ndvi"}, c.Vars())

	coords := c.Coords()
	require.Equal(t, []float64{300, 280, 260}, coords.Y)
	require.Equal(t, []float64{500, 520}, coords.X)
	require.Equal(t, []float64{0, 5, 10, 15}, coords.TimeRaw)

	require.Len(t, coords.Time, 4)
	require.True(t, coords.Time[0].Equal(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, coords.Time[2].Equal(time.Date(2018, 1, 11, 0, 0, 0, 0, time.UTC)))
}

func TestVarRead(t *testing.T) {
	c, err := Open(writeTestCube(t))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	v, err := c.Var("ndvi")
	require.NoError(t, err)
	require.Equal(t, []string{DimTime, DimY, DimX}, v.Dims())
	require.Equal(t, []int{4, 3, 2}, v.Shape())

	vals, err := v.Read()
	require.NoError(t, err)
	require.Len(t, vals, 4*3*2)

	// C order over (time, y, x): index = t*6 + row*2 + col.
	require.Equal(t, 0.0, vals[0])
	require.Equal(t, 11.0, vals[0*6+1*2+1])
	require.Equal(t, 321.0, vals[3*6+2*2+1])
}

func TestVarUnknown(t *testing.T) {
	c, err := Open(writeTestCube(t))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.Var("lai")
	require.ErrorContains(t, err, `no variable "lai"`)
}

func TestOpenWithVariables(t *testing.T) {
	path := writeTestCube(t)

	c, err := Open(path, WithVariables("ndvi"))
	require.NoError(t, err)
	require.Equal(t, []string{"ndvi"}, c.Vars())
	require.NoError(t, c.Close())

	_, err = Open(path, WithVariables("lai"))
	require.ErrorContains(t, err, `no variable "lai"`)
}

func TestOpenWithRawTime(t *testing.T) {
	c, err := Open(writeTestCube(t), WithRawTime())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	coords := c.Coords()
	require.Empty(t, coords.Time)
	require.Equal(t, []float64{0, 5, 10, 15}, coords.TimeRaw)
}

func TestOpenMissingCoordinate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.nc")
	f, err := hdf5.Create(path)
	require.NoError(t, err)

	_, err = f.Root().CreateDataset("time", []int32{0, 5},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"),
		hdf5.WithAttribute("units", "days since 2018-01-01"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.ErrorContains(t, err, "missing y coordinate")
}

func TestOpenNotAContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nc")
	require.NoError(t, os.WriteFile(path, []byte("not hdf5"), 0o644))

	_, err := Open(path)
	require.ErrorContains(t, err, "opening container")
}
