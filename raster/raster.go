// Package raster reads the small single-band GeoTIFF rasters shipped as
// sample data. The sole band is read fully into memory; these rasters are
// small by design and there is no lazy path.
package raster

import (
	"fmt"
	"image"
	"os"

	"golang.org/x/image/tiff"
)

// Grid is a single-band raster held fully in memory: a 2-D numeric array
// in row-major order plus its dimensions.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// Read opens a single-band TIFF file and loads its band.
func Read(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding raster: %w", err)
	}
	return fromImage(img), nil
}

// At returns the value at the given row and column.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Width+col]
}

// Shape returns the grid's (height, width).
func (g *Grid) Shape() (int, int) {
	return g.Height, g.Width
}

func fromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	g := &Grid{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   make([]float64, bounds.Dx()*bounds.Dy()),
	}

	switch im := img.(type) {
	case *image.Gray:
		for row := 0; row < g.Height; row++ {
			off := im.PixOffset(bounds.Min.X, bounds.Min.Y+row)
			for col := 0; col < g.Width; col++ {
				g.Data[row*g.Width+col] = float64(im.Pix[off+col])
			}
		}
	case *image.Gray16:
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				v := im.Gray16At(bounds.Min.X+col, bounds.Min.Y+row)
				g.Data[row*g.Width+col] = float64(v.Y)
			}
		}
	default:
		// Percentage and classification layers occasionally arrive with
		// a palette or RGB photometric; fold them to 16-bit luminance.
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				r, _, _, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
				g.Data[row*g.Width+col] = float64(r)
			}
		}
	}
	return g
}
