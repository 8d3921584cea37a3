// Package simulate generates synthetic vegetation index time series and
// data cubes for testing monitoring algorithms without real imagery. A
// simulated series is a seasonal signal with noise and, optionally, an
// abrupt disturbance at a known position, which makes detection results
// verifiable.
package simulate

import (
	"math"
	"math/rand"
	"time"
)

// TSParams controls a single simulated time series.
type TSParams struct {
	// N is the number of observations.
	N int

	// Start is the timestamp of the first observation; Interval is the
	// spacing between observations.
	Start    time.Time
	Interval time.Duration

	// Mean, Amplitude, and Noise shape the seasonal signal: a yearly
	// sine of the given amplitude around the mean, with gaussian noise.
	Mean      float64
	Amplitude float64
	Noise     float64

	// BreakIndex is the observation at which an abrupt disturbance of
	// the given Magnitude is subtracted from the signal. Negative means
	// no disturbance.
	BreakIndex int
	Magnitude  float64

	// Seed makes the series reproducible.
	Seed int64
}

// DefaultTSParams returns parameters for a two-year, 5-daily NDVI-like
// series with a disturbance at its midpoint.
func DefaultTSParams() TSParams {
	return TSParams{
		N:          146,
		Start:      time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:   5 * 24 * time.Hour,
		Mean:       0.7,
		Amplitude:  0.15,
		Noise:      0.03,
		BreakIndex: 73,
		Magnitude:  0.25,
		Seed:       42,
	}
}

// TS is a simulated time series.
type TS struct {
	Dates  []time.Time
	Values []float64
}

// MakeTS simulates one time series.
func MakeTS(p TSParams) TS {
	rng := rand.New(rand.NewSource(p.Seed))

	ts := TS{
		Dates:  make([]time.Time, p.N),
		Values: make([]float64, p.N),
	}
	for i := 0; i < p.N; i++ {
		date := p.Start.Add(time.Duration(i) * p.Interval)
		ts.Dates[i] = date

		doy := float64(date.YearDay())
		v := p.Mean + p.Amplitude*math.Sin(2*math.Pi*doy/365.25) + rng.NormFloat64()*p.Noise
		if p.BreakIndex >= 0 && i >= p.BreakIndex {
			v -= p.Magnitude
		}
		ts.Values[i] = v
	}
	return ts
}

// CubeParams controls a simulated data cube: a grid of independent time
// series, a fraction of which carry a disturbance.
type CubeParams struct {
	NY, NX int

	// TS is the per-pixel series template. Each pixel's phase and noise
	// are drawn independently; disturbed pixels break at TS.BreakIndex.
	TS TSParams

	// DisturbedFraction is the share of pixels that receive a
	// disturbance.
	DisturbedFraction float64

	Seed int64
}

// MakeCubeParameters returns cube parameters for a grid of the given
// extent with one pixel in four disturbed, built on DefaultTSParams.
func MakeCubeParameters(ny, nx int, seed int64) CubeParams {
	return CubeParams{
		NY:                ny,
		NX:                nx,
		TS:                DefaultTSParams(),
		DisturbedFraction: 0.25,
		Seed:              seed,
	}
}

// Cube is a simulated data cube with one variable, flattened in C order
// over (time, y, x). Disturbed marks, per pixel, whether a disturbance
// was simulated.
type Cube struct {
	Times     []time.Time
	Y         []float64
	X         []float64
	Values    []float64
	Disturbed []bool
}

// At returns the simulated value at a time step and pixel.
func (c *Cube) At(t, row, col int) float64 {
	ny, nx := len(c.Y), len(c.X)
	return c.Values[t*ny*nx+row*nx+col]
}

// MakeCube simulates a data cube.
func MakeCube(p CubeParams) *Cube {
	rng := rand.New(rand.NewSource(p.Seed))

	base := MakeTS(p.TS)
	c := &Cube{
		Times:     base.Dates,
		Y:         make([]float64, p.NY),
		X:         make([]float64, p.NX),
		Values:    make([]float64, p.TS.N*p.NY*p.NX),
		Disturbed: make([]bool, p.NY*p.NX),
	}
	for i := range c.Y {
		c.Y[i] = float64(i)
	}
	for i := range c.X {
		c.X[i] = float64(i)
	}

	for row := 0; row < p.NY; row++ {
		for col := 0; col < p.NX; col++ {
			pixel := p.TS
			pixel.Seed = rng.Int63()
			disturbed := rng.Float64() < p.DisturbedFraction
			if !disturbed {
				pixel.BreakIndex = -1
			}
			c.Disturbed[row*p.NX+col] = disturbed

			ts := MakeTS(pixel)
			for t, v := range ts.Values {
				c.Values[t*p.NY*p.NX+row*p.NX+col] = v
			}
		}
	}
	return c
}
