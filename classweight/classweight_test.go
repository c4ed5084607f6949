package classweight

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

func captureWarnings(t *testing.T) *[]error {
	t.Helper()
	var got []error
	errors.SetWarningHandler(func(w error) { got = append(got, w) })
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return &got
}

func TestComputeSingleClass(t *testing.T) {
	table, err := Compute(1000, []ClassCount{{Name: "A", Positive: 100}}, 1, false)
	require.NoError(t, err)

	w, ok := table.Get("A")
	require.True(t, ok)
	assert.InDelta(t, 0.1, w.Negative, 1e-12)
	assert.InDelta(t, 0.9, w.Positive, 1e-12)
	assert.Equal(t, 1.0, table.Factor("A"))
}

func TestComputeMultiply(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		positive int
		multiply float64
		w0, w1   float64
	}{
		{"balanced classes", 100, 50, 1, 0.5, 0.5},
		{"multiply inflates negatives", 1000, 100, 2, 100.0 / 1900, 1800.0 / 1900},
		{"fractional multiply", 10, 2, 0.5, 2.0 / 6, 4.0 / 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Compute(tt.total, []ClassCount{{Name: "C", Positive: tt.positive}}, tt.multiply, false)
			require.NoError(t, err)
			w, _ := table.Get("C")
			assert.InDelta(t, tt.w0, w.Negative, 1e-12)
			assert.InDelta(t, tt.w1, w.Positive, 1e-12)
		})
	}
}

func TestComputeBalancing(t *testing.T) {
	counts := []ClassCount{{Name: "A", Positive: 100}, {Name: "B", Positive: 50}}

	plain, err := Compute(1000, counts, 1, false)
	require.NoError(t, err)
	balanced, err := Compute(1000, counts, 1, true)
	require.NoError(t, err)

	fa, fb := balanced.Factor("A"), balanced.Factor("B")
	// factor times positive count is equal across classes
	assert.InDelta(t, fa*100, fb*50, 1e-9)
	// factors average to the balancing multiply
	assert.InDelta(t, DefaultBalancingMultiply, (fa+fb)/2, 1e-9)

	for _, name := range []string{"A", "B"} {
		p, _ := plain.Get(name)
		b, _ := balanced.Get(name)
		f := balanced.Factor(name)
		assert.InDelta(t, p.Negative*f, b.Negative, 1e-12)
		assert.InDelta(t, p.Positive*f, b.Positive, 1e-12)
		assert.Greater(t, b.Negative, 0.0)
		assert.Greater(t, b.Positive, 0.0)
	}
}

func TestComputeBalancingMultiplyOption(t *testing.T) {
	counts := []ClassCount{{Name: "A", Positive: 10}, {Name: "B", Positive: 10}}
	table, err := Compute(100, counts, 1, true, WithBalancingMultiply(3))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, table.Factor("A"), 1e-12)
	assert.InDelta(t, 3.0, table.Factor("B"), 1e-12)
}

func TestComputeBalancingZeroPositive(t *testing.T) {
	counts := []ClassCount{{Name: "Hernia", Positive: 0}, {Name: "Effusion", Positive: 30}}
	_, err := Compute(100, counts, 1, true)

	var hazard *errors.DivisionHazardError
	require.True(t, errors.As(err, &hazard), "expected DivisionHazardError, got %v", err)
	assert.Equal(t, "Hernia", hazard.Class)
}

func TestComputeDegenerateWarns(t *testing.T) {
	warnings := captureWarnings(t)

	table, err := Compute(10, []ClassCount{{Name: "None", Positive: 0}, {Name: "All", Positive: 10}}, 1, false)
	require.NoError(t, err)

	w, _ := table.Get("None")
	assert.Equal(t, 0.0, w.Negative)
	w, _ = table.Get("All")
	assert.Equal(t, 0.0, w.Positive)

	require.Len(t, *warnings, 2)
	var dw *errors.DegenerateWeightWarning
	require.True(t, errors.As((*warnings)[0], &dw))
	assert.Equal(t, "None", dw.Class)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		counts   []ClassCount
		multiply float64
	}{
		{"zero total", 0, []ClassCount{{Name: "A", Positive: 0}}, 1},
		{"no classes", 10, nil, 1},
		{"positive above total", 10, []ClassCount{{Name: "A", Positive: 11}}, 1},
		{"negative positive", 10, []ClassCount{{Name: "A", Positive: -1}}, 1},
		{"duplicate class", 10, []ClassCount{{Name: "A", Positive: 1}, {Name: "A", Positive: 2}}, 1},
		{"zero multiply", 10, []ClassCount{{Name: "A", Positive: 1}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.total, tt.counts, tt.multiply, false)
			assert.Error(t, err)
		})
	}

	_, err := Compute(10, []ClassCount{{Name: "A", Positive: 1}}, 1, true, WithBalancingMultiply(0))
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestComputeLogs(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	_, err := Compute(100, []ClassCount{{Name: "A", Positive: 10}}, 1, false, WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Class weights computed"))
	assert.True(t, logger.ContainsField(log.ComponentKey, "classweight"))
}

func TestTableJSONRoundTrip(t *testing.T) {
	counts := []ClassCount{{Name: "Infiltration", Positive: 20}, {Name: "Effusion", Positive: 10}}
	table, err := Compute(100, counts, 1, false)
	require.NoError(t, err)

	out, err := table.MarshalJSON()
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, `{"Infiltration":{"0":`), s)
	assert.Less(t, strings.Index(s, "Infiltration"), strings.Index(s, "Effusion"))

	back, err := ReadJSON(bytes.NewReader(out), []string{"Infiltration", "Effusion"})
	require.NoError(t, err)
	assert.Equal(t, table.Names(), back.Names())
	for _, name := range table.Names() {
		want, _ := table.Get(name)
		got, _ := back.Get(name)
		assert.InDelta(t, want.Negative, got.Negative, 1e-12)
		assert.InDelta(t, want.Positive, got.Positive, 1e-12)
	}

	assert.NotContains(t, s, "factor")
	assert.Equal(t, 1.0, back.Factor("Effusion"))

	_, err = ReadJSON(bytes.NewReader(out), []string{"Atelectasis"})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestTableJSONKeepsBalancingFactors(t *testing.T) {
	counts := []ClassCount{{Name: "Infiltration", Positive: 20}, {Name: "Effusion", Positive: 10}}
	names := []string{"Infiltration", "Effusion"}
	table, err := Compute(100, counts, 1, true)
	require.NoError(t, err)

	out, err := table.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"factor":`)

	back, err := ReadJSON(bytes.NewReader(out), names)
	require.NoError(t, err)
	for _, name := range names {
		assert.InDelta(t, table.Factor(name), back.Factor(name), 1e-12, name)
	}
	assert.InDelta(t, back.Factor("Infiltration")*20, back.Factor("Effusion")*10, 1e-9)

	t.Run("negative factor is rejected", func(t *testing.T) {
		doc := `{"Infiltration":{"0":0.1,"1":0.9,"factor":-2},"Effusion":{"0":0.1,"1":0.9}}`
		_, err := ReadJSON(strings.NewReader(doc), names)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})
}
