package report

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medimg/classweight"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

var counts = []classweight.ClassCount{
	{Name: "Atelectasis", Positive: 120},
	{Name: "Effusion", Positive: 80},
	{Name: "Infiltration", Positive: 200},
}

func TestClassCountChartSavesPNG(t *testing.T) {
	p, err := ClassCountChart(counts, 1000)
	require.NoError(t, err)
	assert.Equal(t, "Positive samples per class (total 1,000)", p.Title.Text)

	fs := afero.NewMemMapFs()
	require.NoError(t, Save(fs, "/out/counts.png", p, DefaultWidth, DefaultHeight))

	data, err := afero.ReadFile(fs, "/out/counts.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestClassWeightChartSavesSVG(t *testing.T) {
	table, err := classweight.Compute(1000, counts, 1, true)
	require.NoError(t, err)

	p, err := ClassWeightChart(table)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, Save(fs, "/out/weights.svg", p, DefaultWidth, DefaultHeight))
	data, err := afero.ReadFile(fs, "/out/weights.svg")
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestChartErrors(t *testing.T) {
	_, err := ClassCountChart(nil, 0)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	p, err := ClassCountChart(counts, 10)
	require.NoError(t, err)
	assert.Error(t, Save(afero.NewMemMapFs(), "/out/chart", p, DefaultWidth, DefaultHeight))
	assert.Error(t, Save(afero.NewMemMapFs(), "/out/chart.bmp", p, DefaultWidth, DefaultHeight))
}
