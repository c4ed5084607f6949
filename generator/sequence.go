package generator

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/dataset"
	"github.com/YuminosukeSato/medimg/imageio"
	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// Batch is one fetch from a Sequence.
type Batch struct {
	Inputs  *tensor.Tensor
	Targets *Targets
	// Rows are the index rows the batch was built from, in batch order.
	Rows []dataset.Row
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithDilation sets how many passes over the index make one logical epoch.
// Values below 1 are rejected by NewSequence.
func WithDilation(d float64) Option {
	return func(s *Sequence) {
		s.dilation = d
	}
}

// WithSeed makes Shuffle reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Sequence) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l log.Logger) Option {
	return func(s *Sequence) {
		s.logger = l
	}
}

// Sequence iterates a dataset index in fixed-size batches for one role
// (train, dev, test or raw).
//
// The number of physical batches, steps = ceil(rows / batch_size), is fixed at
// construction. Len reports floor(dilation * steps) fetches per epoch and Get
// maps fetch i to batch i mod steps, so a dilated epoch revisits the same
// batches. The last batch of a non-divisible index is short.
//
// Get and the target accessors may run concurrently with each other but
// Shuffle takes the index exclusively.
type Sequence struct {
	mu        sync.RWMutex
	index     *dataset.Index
	assembler *Assembler
	mode      imageio.Mode
	batchSize int
	steps     int
	dilation  float64
	rng       *rand.Rand
	logger    log.Logger
}

// NewSequence creates a Sequence over index. The batch size comes from the
// assembler's image configuration. The sequence takes ownership of index and
// reorders it on Shuffle.
func NewSequence(index *dataset.Index, assembler *Assembler, mode imageio.Mode, opts ...Option) (*Sequence, error) {
	s := &Sequence{
		index:     index,
		assembler: assembler,
		mode:      mode,
		batchSize: assembler.Config().BatchSize,
		dilation:  1,
		logger:    log.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	switch {
	case !mode.Valid():
		return nil, errors.NewConfigurationError("set_name", "unknown mode", mode)
	case s.dilation < 1 || math.IsNaN(s.dilation) || math.IsInf(s.dilation, 0):
		return nil, errors.NewConfigurationError("dilation", "must be at least 1, a smaller value truncates the dataset every epoch", s.dilation)
	case s.batchSize <= 0:
		return nil, errors.NewConfigurationError("batch_size", "must be positive", s.batchSize)
	case index == nil || index.Len() == 0:
		return nil, errors.NewConfigurationError("index", "dataset index is empty", 0)
	}

	s.steps = (index.Len() + s.batchSize - 1) / s.batchSize
	s.logger = s.logger.With(log.ComponentKey, "generator", log.PhaseKey, string(mode))
	s.logger.Info("Sequence created",
		log.SamplesKey, index.Len(),
		log.BatchSizeKey, s.batchSize,
		log.StepsKey, s.steps,
		log.DilationKey, s.dilation,
		log.DataSizeKey, humanize.Bytes(s.estimatedBatchBytes()),
	)
	return s, nil
}

// estimatedBatchBytes is the input tensor size of a full batch, or 0 when the
// image size is only known after decoding.
func (s *Sequence) estimatedBatchBytes() uint64 {
	cfg := s.assembler.Config()
	if cfg.ImgDim == 0 {
		return 0
	}
	return uint64(s.batchSize) * uint64(cfg.ImgDim*cfg.ImgDim*cfg.Channels()) * 8
}

// Len returns the number of fetches per logical epoch, floor(dilation * steps).
func (s *Sequence) Len() int {
	return int(math.Floor(s.dilation * float64(s.steps)))
}

// Steps returns the number of physical batches in one pass over the index.
func (s *Sequence) Steps() int {
	return s.steps
}

// BatchSize returns the number of rows per full batch.
func (s *Sequence) BatchSize() int {
	return s.batchSize
}

// Mode returns the role the sequence generates batches for.
func (s *Sequence) Mode() imageio.Mode {
	return s.mode
}

// Shuffle reorders the index with a fresh random permutation. Steps is
// unchanged.
func (s *Sequence) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Shuffle(s.rng)
}

// Get returns fetch i. Any non-negative i is valid: it selects rows
// [slot*batch_size, (slot+1)*batch_size) of the current order with
// slot = i mod Steps.
func (s *Sequence) Get(i int) (*Batch, error) {
	if i < 0 {
		return nil, errors.NewValidationError("index", "batch index must be non-negative", i)
	}
	slot := i % s.steps

	s.mu.RLock()
	rows := append([]dataset.Row(nil), s.index.Slice(slot*s.batchSize, (slot+1)*s.batchSize)...)
	s.mu.RUnlock()

	ids := make([]string, len(rows))
	labels := make([][]float64, len(rows))
	for j, r := range rows {
		ids[j] = r.ImageID
		labels[j] = r.Labels
	}

	s.logger.Info("Yielding batch",
		log.BatchIndexKey, i,
		log.BatchSlotKey, slot,
		log.PatientIDsKey, patientSummary(rows),
	)
	s.logger.Debug("Batch images", log.BatchIndexKey, i, "images", ids)

	inputs, targets, err := s.assembler.Assemble(ids, labels, s.mode)
	if err != nil {
		return nil, errors.Wrapf(err, "batch %d (slot %d)", i, slot)
	}
	s.logger.Debug("Batch ready",
		log.BatchIndexKey, i,
		log.ShapeKey, inputs.Shape(),
		log.DataSizeKey, humanize.Bytes(inputs.SizeBytes()),
	)
	return &Batch{Inputs: inputs, Targets: targets, Rows: rows}, nil
}

// patientSummary lists the first five and the last two patient IDs of a batch.
func patientSummary(rows []dataset.Row) []string {
	if len(rows) <= 7 {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.PatientID
		}
		return out
	}
	out := make([]string, 0, 8)
	for _, r := range rows[:5] {
		out = append(out, r.PatientID)
	}
	out = append(out, "...")
	for _, r := range rows[len(rows)-2:] {
		out = append(out, r.PatientID)
	}
	return out
}

func labelsOf(rows []dataset.Row) [][]float64 {
	labels := make([][]float64, len(rows))
	for i, r := range rows {
		labels[i] = r.Labels
	}
	return labels
}

// Targets returns the labels of every row in the current order as a
// [rows, classes] matrix.
func (s *Sequence) Targets() (*mat.Dense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return LabelMatrix(labelsOf(s.index.Rows()))
}

// TargetAt returns the label vector of one row in the current order.
func (s *Sequence) TargetAt(row int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= s.index.Len() {
		return nil, errors.NewValidationError("row", "out of range", row)
	}
	return append([]float64(nil), s.index.Row(row).Labels...), nil
}

// TargetsForSteps returns the labels of the first steps*batch_size rows,
// clamped to the index length.
func (s *Sequence) TargetsForSteps(steps int) (*mat.Dense, error) {
	if steps <= 0 {
		return nil, errors.NewValidationError("steps", "must be positive", steps)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return LabelMatrix(labelsOf(s.index.Slice(0, steps*s.batchSize)))
}

// InputAt loads one row's image as a [1, H, W, C] tensor without augmentation
// or normalization.
func (s *Sequence) InputAt(row int, mode imageio.Mode) (*tensor.Tensor, error) {
	s.mu.RLock()
	if row < 0 || row >= s.index.Len() {
		s.mu.RUnlock()
		return nil, errors.NewValidationError("row", "out of range", row)
	}
	id := s.index.Row(row).ImageID
	s.mu.RUnlock()
	return s.assembler.Pipeline().Generate([]string{id}, mode, nil, nil)
}
