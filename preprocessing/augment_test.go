package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medimg/config"
)

func TestRandomAugmenterDeterministicBySeed(t *testing.T) {
	x := batch(t, 4, 3, 3, 1, func(i int) float64 { return float64(i + 1) })

	a1 := NewRandomAugmenter(true, true, 0.34, 42)
	a2 := NewRandomAugmenter(true, true, 0.34, 42)

	out1, err := a1.Apply(x)
	require.NoError(t, err)
	out2, err := a2.Apply(x)
	require.NoError(t, err)

	assert.Equal(t, x.Shape(), out1.Shape())
	assert.Equal(t, out1.Data(), out2.Data())
}

func TestRandomAugmenterFlipOnly(t *testing.T) {
	// each 1x3 row is [1 2 3]; a horizontal flip turns it into [3 2 1]
	x := batch(t, 16, 1, 3, 1, func(i int) float64 { return float64(i%3 + 1) })

	out, err := NewRandomAugmenter(true, false, 0, 7).Apply(x)
	require.NoError(t, err)

	flipped := 0
	for i := 0; i < 16; i++ {
		row := out.Sample(i).Data()
		switch {
		case row[0] == 1 && row[2] == 3:
		case row[0] == 3 && row[2] == 1:
			flipped++
		default:
			t.Fatalf("sample %d is neither identity nor flip: %v", i, row)
		}
		assert.Equal(t, 2.0, row[1])
	}
	assert.Greater(t, flipped, 0)
	assert.Less(t, flipped, 16)
}

func TestRandomAugmenterNoOpPreservesBatch(t *testing.T) {
	x := batch(t, 2, 2, 2, 3, func(i int) float64 { return float64(i) })
	out, err := NewRandomAugmenter(false, false, 0, 1).Apply(x)
	require.NoError(t, err)
	assert.Equal(t, x.Data(), out.Data())
}

func TestNewAugmenterFromConfig(t *testing.T) {
	assert.Nil(t, NewAugmenter(config.AugmentConfig{FlipHorizontal: true}))
	assert.Nil(t, NewAugmenter(config.AugmentConfig{TrainAugmentation: true}))
	assert.NotNil(t, NewAugmenter(config.AugmentConfig{DevAugmentation: true, MaxShift: 0.1}))
}
