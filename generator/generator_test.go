package generator

import (
	"fmt"
	"image"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medimg/config"
	"github.com/YuminosukeSato/medimg/core/model"
	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/dataset"
	"github.com/YuminosukeSato/medimg/imageio"
	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

const imageDir = "/data/images"

var classes = []string{"Atelectasis", "Effusion", "Infiltration"}

type fixture struct {
	fs    afero.Fs
	cfg   config.ImageConfig
	index *dataset.Index
}

func imageID(i int) string {
	return fmt.Sprintf("%08d_000.png", i)
}

// newFixture writes n 4x4 grayscale images whose pixels all equal the row
// number and builds a matching index.
func newFixture(t *testing.T, n, batchSize int) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(imageDir, 0o755))

	rows := make([]dataset.Row, n)
	for i := range rows {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		for p := range img.Pix {
			img.Pix[p] = uint8(i)
		}
		f, err := fs.Create(filepath.Join(imageDir, imageID(i)))
		require.NoError(t, err)
		require.NoError(t, imaging.Encode(f, img, imaging.PNG))
		require.NoError(t, f.Close())

		labels := make([]float64, len(classes))
		labels[i%len(classes)] = 1
		rows[i] = dataset.Row{ImageID: imageID(i), PatientID: fmt.Sprint(i / 2), Labels: labels}
	}
	index, err := dataset.NewIndex(classes, rows)
	require.NoError(t, err)

	cfg := config.Default().Image
	cfg.ImageDir = imageDir
	cfg.BatchSize = batchSize
	return &fixture{fs: fs, cfg: cfg, index: index}
}

func (f *fixture) assembler(opts ...AssemblerOption) *Assembler {
	loader := imageio.NewLoader(f.fs, f.cfg)
	return NewAssembler(NewPipeline(loader, nil), opts...)
}

func (f *fixture) sequence(t *testing.T, mode imageio.Mode, opts ...Option) *Sequence {
	t.Helper()
	seq, err := NewSequence(f.index, f.assembler(), mode, opts...)
	require.NoError(t, err)
	return seq
}

// rowsOf reads the row number back out of each image of a batch.
func rowsOf(x *tensor.Tensor) []int {
	out := make([]int, x.Dim(0))
	for i := range out {
		out[i] = int(x.At(i, 0, 0, 0))
	}
	return out
}

func TestSequenceLen(t *testing.T) {
	tests := []struct {
		rows, batch int
		dilation    float64
		steps, len  int
	}{
		{10, 3, 1, 4, 4},
		{9, 3, 1, 3, 3},
		{10, 3, 2, 4, 8},
		{10, 3, 1.5, 4, 6},
		{10, 4, 1.3, 3, 3},
		{1, 32, 3, 1, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%g", tt.rows, tt.batch, tt.dilation), func(t *testing.T) {
			f := newFixture(t, tt.rows, tt.batch)
			seq := f.sequence(t, imageio.ModeTest, WithDilation(tt.dilation))
			assert.Equal(t, tt.steps, seq.Steps())
			assert.Equal(t, tt.len, seq.Len())
		})
	}
}

func TestSequenceRejectsConfiguration(t *testing.T) {
	f := newFixture(t, 4, 2)
	var cfgErr *errors.ConfigurationError

	_, err := NewSequence(f.index, f.assembler(), imageio.ModeTrain, WithDilation(0.5))
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "dilation", cfgErr.Param)

	_, err = NewSequence(f.index, f.assembler(), imageio.Mode("eval"))
	assert.True(t, errors.As(err, &cfgErr))

	empty, err := dataset.NewIndex(classes, nil)
	require.NoError(t, err)
	_, err = NewSequence(empty, f.assembler(), imageio.ModeTrain)
	assert.True(t, errors.As(err, &cfgErr))

	f.cfg.BatchSize = 0
	_, err = NewSequence(f.index, f.assembler(), imageio.ModeTrain)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSequenceGetWrapsAround(t *testing.T) {
	f := newFixture(t, 7, 3)
	seq := f.sequence(t, imageio.ModeTest, WithDilation(3))
	require.Equal(t, 3, seq.Steps())

	want := [][]int{{0, 1, 2}, {3, 4, 5}, {6}}
	for i := 0; i < seq.Len(); i++ {
		b, err := seq.Get(i)
		require.NoError(t, err)
		assert.Equal(t, want[i%3], rowsOf(b.Inputs), "fetch %d", i)
		assert.Equal(t, []int{len(want[i%3]), 4, 4, 1}, b.Inputs.Shape())
		assert.Equal(t, len(want[i%3]), b.Targets.Len())
	}

	// beyond Len still resolves to a valid slot
	b, err := seq.Get(100)
	require.NoError(t, err)
	assert.Equal(t, want[100%3], rowsOf(b.Inputs))

	_, err = seq.Get(-1)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestSequenceShuffle(t *testing.T) {
	f := newFixture(t, 10, 4)
	seq := f.sequence(t, imageio.ModeTest, WithSeed(7))

	seq.Shuffle()
	assert.Equal(t, 3, seq.Steps())

	seen := map[int]int{}
	for i := 0; i < seq.Steps(); i++ {
		b, err := seq.Get(i)
		require.NoError(t, err)
		again, err := seq.Get(i + seq.Steps())
		require.NoError(t, err)
		assert.Equal(t, rowsOf(b.Inputs), rowsOf(again.Inputs))
		for _, r := range rowsOf(b.Inputs) {
			seen[r]++
		}
	}
	assert.Len(t, seen, 10, "one pass covers every row exactly once")
	for r, n := range seen {
		assert.Equal(t, 1, n, "row %d", r)
	}

	// the same seed reproduces the same order
	g := newFixture(t, 10, 4)
	other := g.sequence(t, imageio.ModeTest, WithSeed(7))
	other.Shuffle()
	want, err := seq.Targets()
	require.NoError(t, err)
	got, err := other.Targets()
	require.NoError(t, err)
	assert.Equal(t, want.RawMatrix().Data, got.RawMatrix().Data)
}

func TestSequenceTargets(t *testing.T) {
	f := newFixture(t, 5, 2)
	seq := f.sequence(t, imageio.ModeTrain)

	all, err := seq.Targets()
	require.NoError(t, err)
	r, c := all.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 3, c)

	row, err := seq.TargetAt(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, row)
	_, err = seq.TargetAt(5)
	assert.Error(t, err)

	first, err := seq.TargetsForSteps(2)
	require.NoError(t, err)
	r, _ = first.Dims()
	assert.Equal(t, 4, r)
	assert.True(t, mat.Equal(first, all.Slice(0, 4, 0, 3)))

	clamped, err := seq.TargetsForSteps(10)
	require.NoError(t, err)
	assert.True(t, mat.Equal(clamped, all))

	_, err = seq.TargetsForSteps(0)
	assert.Error(t, err)
}

func TestSequenceTargetsReportsRaggedLabels(t *testing.T) {
	f := newFixture(t, 4, 2)
	seq := f.sequence(t, imageio.ModeTrain)
	seq.index.Rows()[2].Labels = []float64{1}

	m, err := seq.Targets()
	assert.Nil(t, m)
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr), "expected DimensionError, got %v", err)
	assert.Equal(t, 1, dimErr.Axis)
}

func TestSequenceInputAt(t *testing.T) {
	f := newFixture(t, 3, 2)
	seq := f.sequence(t, imageio.ModeTrain)

	x, err := seq.InputAt(2, imageio.ModeRaw)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 4, 1}, x.Shape())
	assert.Equal(t, 2.0, x.At(0, 3, 3, 0))

	_, err = seq.InputAt(3, imageio.ModeRaw)
	assert.Error(t, err)
}

func TestSequenceMissingImage(t *testing.T) {
	f := newFixture(t, 4, 2)
	require.NoError(t, f.fs.Remove(filepath.Join(imageDir, imageID(3))))
	seq := f.sequence(t, imageio.ModeTrain)

	_, err := seq.Get(0)
	require.NoError(t, err)

	_, err = seq.Get(1)
	var nf *errors.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Contains(t, nf.Path, imageID(3))
}

func TestSequenceLogs(t *testing.T) {
	f := newFixture(t, 4, 2)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	seq := f.sequence(t, imageio.ModeDev, WithLogger(logger))

	assert.True(t, logger.ContainsMessage("Sequence created"))
	assert.True(t, logger.ContainsField(log.StepsKey, 2.0))

	_, err := seq.Get(3)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Yielding batch"))
	assert.True(t, logger.ContainsField(log.BatchSlotKey, 1.0))
	assert.True(t, logger.ContainsField(log.PhaseKey, "dev"))
	assert.False(t, logger.ContainsMessage("Batch ready"), "debug output stays off at info level")
}

func TestPatientSummary(t *testing.T) {
	rows := make([]dataset.Row, 10)
	for i := range rows {
		rows[i].PatientID = fmt.Sprint(i)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "...", "8", "9"}, patientSummary(rows))
	assert.Equal(t, []string{"0", "1"}, patientSummary(rows[:2]))
}

func counting(calls *atomic.Int32) model.TransformerFunc {
	return func(x *tensor.Tensor) (*tensor.Tensor, error) {
		calls.Add(1)
		return x, nil
	}
}

func TestAssemblerModeGating(t *testing.T) {
	tests := []struct {
		mode       imageio.Mode
		trainAug   bool
		devAug     bool
		augmented  bool
		normalized bool
	}{
		{imageio.ModeTrain, true, false, true, true},
		{imageio.ModeTrain, false, true, false, true},
		{imageio.ModeDev, false, true, true, true},
		{imageio.ModeDev, true, false, false, true},
		{imageio.ModeTest, true, true, false, true},
		{imageio.ModeRaw, true, true, false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/train=%v/dev=%v", tt.mode, tt.trainAug, tt.devAug), func(t *testing.T) {
			f := newFixture(t, 2, 2)
			f.cfg.Augment.TrainAugmentation = tt.trainAug
			f.cfg.Augment.DevAugmentation = tt.devAug

			var augCalls, normCalls atomic.Int32
			as := f.assembler(WithAugmenter(counting(&augCalls)), WithNormalizer(counting(&normCalls)))

			_, _, err := as.Assemble([]string{imageID(0), imageID(1)}, [][]float64{{1, 0, 0}, {0, 1, 0}}, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.augmented, augCalls.Load() == 1)
			assert.Equal(t, tt.normalized, normCalls.Load() == 1)
		})
	}
}

func TestAssemblerAugmentsBeforeNormalizing(t *testing.T) {
	f := newFixture(t, 1, 1)
	f.cfg.Augment.TrainAugmentation = true

	var order []string
	aug := model.TransformerFunc(func(x *tensor.Tensor) (*tensor.Tensor, error) {
		order = append(order, "aug")
		return x, nil
	})
	norm := model.TransformerFunc(func(x *tensor.Tensor) (*tensor.Tensor, error) {
		order = append(order, "norm")
		return x, nil
	})
	_, _, err := f.assembler(WithAugmenter(aug), WithNormalizer(norm)).
		Assemble([]string{imageID(0)}, [][]float64{{0, 0, 1}}, imageio.ModeTrain)
	require.NoError(t, err)
	assert.Equal(t, []string{"aug", "norm"}, order)
}

func TestAssemblerMultibinary(t *testing.T) {
	f := newFixture(t, 4, 4)
	f.cfg.ClassMode = config.ClassModeMultibinary

	labels := [][]float64{{1, 0, 0}, {0, 1, 1}, {0, 0, 0}, {1, 1, 0}}
	ids := []string{imageID(0), imageID(1), imageID(2), imageID(3)}
	inputs, targets, err := f.assembler().Assemble(ids, labels, imageio.ModeTest)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 4, 1}, inputs.Shape())
	require.True(t, targets.Multibinary())
	require.Len(t, targets.Heads, 3)
	for _, h := range targets.Heads {
		assert.Equal(t, 4, h.Len())
	}
	assert.Equal(t, []float64{0, 1, 0, 1}, mat.Col(nil, 0, targets.Heads[1]))
	assert.True(t, mat.Equal(targets.Matrix, targets.Concat()))
}

func TestAssemblerMultilabel(t *testing.T) {
	f := newFixture(t, 2, 2)
	labels := [][]float64{{1, 0, 0}, {0, 1, 1}}
	_, targets, err := f.assembler().Assemble([]string{imageID(0), imageID(1)}, labels, imageio.ModeTest)
	require.NoError(t, err)

	assert.False(t, targets.Multibinary())
	assert.Equal(t, []float64{0, 1, 1}, targets.Matrix.RawRowView(1))
	assert.True(t, mat.Equal(targets.Matrix, targets.Concat()))
}

func TestAssemblerValidates(t *testing.T) {
	f := newFixture(t, 2, 2)
	as := f.assembler()
	var dimErr *errors.DimensionError

	_, _, err := as.Assemble([]string{imageID(0)}, [][]float64{{1, 0, 0}, {0, 1, 0}}, imageio.ModeTest)
	assert.True(t, errors.As(err, &dimErr))

	_, _, err = as.Assemble([]string{imageID(0), imageID(1)}, [][]float64{{1, 0, 0}, {0, 1}}, imageio.ModeTest)
	assert.True(t, errors.As(err, &dimErr))

	_, _, err = as.Assemble([]string{imageID(0)}, [][]float64{{1, 0, 0}}, imageio.Mode("eval"))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestPipelineRGBAndParallelOrder(t *testing.T) {
	f := newFixture(t, 12, 12)
	f.cfg.ColorMode = config.ColorModeRGB
	f.cfg.Workers = 4

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = imageID(i)
	}
	x, err := NewPipeline(imageio.NewLoader(f.fs, f.cfg), nil).Generate(ids, imageio.ModeRaw, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 4, 4, 3}, x.Shape())
	for i := range ids {
		assert.Equal(t, float64(i), x.At(i, 1, 1, 2))
	}

	_, err = NewPipeline(imageio.NewLoader(f.fs, f.cfg), nil).Generate(nil, imageio.ModeRaw, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestTargetsHeadsAreIndependent(t *testing.T) {
	targets, err := NewTargets([][]float64{{1, 0}, {0, 1}}, true)
	require.NoError(t, err)
	targets.Heads[0].SetVec(0, 0)
	assert.Equal(t, 1.0, targets.Matrix.At(0, 0))

	_, err = NewTargets(nil, true)
	assert.Error(t, err)
}

func TestSequenceConcurrentReaders(t *testing.T) {
	f := newFixture(t, 6, 2)
	seq := f.sequence(t, imageio.ModeTest)

	done := make(chan []int, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			b, err := seq.Get(i)
			if err != nil {
				done <- nil
				return
			}
			done <- rowsOf(b.Inputs)
		}(i)
	}
	total := 0
	for i := 0; i < 3; i++ {
		rows := <-done
		require.NotNil(t, rows)
		total += len(rows)
	}
	assert.Equal(t, 6, total)
}
