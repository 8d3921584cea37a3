// Package crit loads the table of precomputed critical values used by the
// moving-sums change detection in the monitoring code. The table is
// indexed by relative window size, monitoring period, and functional type
// ("max" or "range"); each leaf holds one critical value per significance
// level.
package crit

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

//go:embed mre_crit_val_table.json
var defaultTable []byte

// SigLevelsKey is the top-level key holding the significance levels the
// leaf value sequences are aligned with.
const SigLevelsKey = "sig_levels"

// Table holds the critical values. It is read-only after load.
type Table struct {
	sigLevels []float64
	// windows: window size -> period -> functional -> values,
	// every leaf aligned index-by-index with sigLevels.
	windows map[string]map[string]map[string][]float64
}

// Load parses and validates a critical value table document. Every leaf
// value sequence must have one entry per significance level.
func Load(r io.Reader) (*Table, error) {
	var doc map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing table document: %w", err)
	}

	rawLevels, ok := doc[SigLevelsKey]
	if !ok {
		return nil, fmt.Errorf("table document has no %q key", SigLevelsKey)
	}

	t := &Table{windows: map[string]map[string]map[string][]float64{}}
	if err := json.Unmarshal(rawLevels, &t.sigLevels); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", SigLevelsKey, err)
	}
	if len(t.sigLevels) == 0 {
		return nil, fmt.Errorf("%q is empty", SigLevelsKey)
	}

	for key, raw := range doc {
		if key == SigLevelsKey {
			continue
		}
		var periods map[string]map[string][]float64
		if err := json.Unmarshal(raw, &periods); err != nil {
			return nil, fmt.Errorf("parsing window %q: %w", key, err)
		}
		for period, functionals := range periods {
			for functional, values := range functionals {
				if len(values) != len(t.sigLevels) {
					return nil, fmt.Errorf("window %q period %q functional %q has %d values, expected %d",
						key, period, functional, len(values), len(t.sigLevels))
				}
			}
		}
		t.windows[key] = periods
	}

	return t, nil
}

// LoadDefault parses the table shipped with the module. The document is
// re-parsed on every call; the returned table shares no state with other
// callers.
func LoadDefault() (*Table, error) {
	return Load(bytes.NewReader(defaultTable))
}

// SigLevels returns the significance levels the value sequences are
// aligned with.
func (t *Table) SigLevels() []float64 {
	out := make([]float64, len(t.sigLevels))
	copy(out, t.sigLevels)
	return out
}

// Windows returns the available window size keys in sorted order.
func (t *Table) Windows() []string {
	keys := make([]string, 0, len(t.windows))
	for k := range t.windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the critical values for a window size, period, and
// functional type, aligned with SigLevels.
func (t *Table) Values(window, period, functional string) ([]float64, error) {
	periods, ok := t.windows[window]
	if !ok {
		return nil, fmt.Errorf("no window size %q in table", window)
	}
	functionals, ok := periods[period]
	if !ok {
		return nil, fmt.Errorf("no period %q for window size %q", period, window)
	}
	values, ok := functionals[functional]
	if !ok {
		return nil, fmt.Errorf("no functional %q for window size %q period %q", functional, window, period)
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, nil
}

// CriticalValue interpolates the critical value for the given significance
// level (1 - alpha) between the precomputed levels, clamping outside the
// table's range.
func (t *Table) CriticalValue(window, period, functional string, sigLevel float64) (float64, error) {
	values, err := t.Values(window, period, functional)
	if err != nil {
		return 0, err
	}

	levels := t.sigLevels
	if sigLevel <= levels[0] {
		return values[0], nil
	}
	if sigLevel >= levels[len(levels)-1] {
		return values[len(values)-1], nil
	}
	for i := 1; i < len(levels); i++ {
		if sigLevel <= levels[i] {
			frac := (sigLevel - levels[i-1]) / (levels[i] - levels[i-1])
			return values[i-1] + frac*(values[i]-values[i-1]), nil
		}
	}
	return values[len(values)-1], nil
}
