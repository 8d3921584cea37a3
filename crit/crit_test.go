package crit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDoc = `{
  "sig_levels": [0.9, 0.95, 0.99],
  "0.5": {
    "2": {
      "max": [1.0, 2.0, 3.0],
      "range": [1.5, 2.5, 3.5]
    },
    "4": {
      "max": [1.1, 2.1, 3.1]
    }
  },
  "1": {
    "2": {
      "max": [0.9, 1.9, 2.9]
    }
  }
}`

func TestLoad(t *testing.T) {
	table, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)

	require.Equal(t, []float64{0.9, 0.95, 0.99}, table.SigLevels())
	require.Equal(t, []string{"0.5", "1"}, table.Windows())

	values, err := table.Values("0.5", "2", "range")
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5, 3.5}, values)
}

func TestLoadRejectsMismatchedLeaf(t *testing.T) {
	doc := `{
  "sig_levels": [0.9, 0.95, 0.99],
  "0.5": {
    "2": {
      "max": [1.0, 2.0]
    }
  }
}`
	_, err := Load(strings.NewReader(doc))
	require.ErrorContains(t, err, "has 2 values, expected 3")
}

func TestLoadRejectsMissingSigLevels(t *testing.T) {
	_, err := Load(strings.NewReader(`{"0.5": {}}`))
	require.ErrorContains(t, err, SigLevelsKey)
}

func TestValuesUnknownKeys(t *testing.T) {
	table, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)

	_, err = table.Values("0.25", "2", "max")
	require.ErrorContains(t, err, `no window size "0.25"`)

	_, err = table.Values("0.5", "10", "max")
	require.ErrorContains(t, err, `no period "10"`)

	_, err = table.Values("0.5", "2", "mosum")
	require.ErrorContains(t, err, `no functional "mosum"`)
}

func TestCriticalValueInterpolates(t *testing.T) {
	table, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)

	// Exact level.
	v, err := table.CriticalValue("0.5", "2", "max", 0.95)
	require.NoError(t, err)
	require.InDelta(t, 2.0, v, 1e-12)

	// Midway between 0.9 and 0.95.
	v, err = table.CriticalValue("0.5", "2", "max", 0.925)
	require.NoError(t, err)
	require.InDelta(t, 1.5, v, 1e-12)

	// Clamped below and above.
	v, err = table.CriticalValue("0.5", "2", "max", 0.5)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-12)

	v, err = table.CriticalValue("0.5", "2", "max", 0.999)
	require.NoError(t, err)
	require.InDelta(t, 3.0, v, 1e-12)
}

func TestLoadDefault(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)

	levels := table.SigLevels()
	require.NotEmpty(t, levels)
	require.Contains(t, table.Windows(), "0.5")

	values, err := table.Values("0.5", "4", "max")
	require.NoError(t, err)
	require.Len(t, values, len(levels))
}
