package generator

import (
	"github.com/YuminosukeSato/medimg/config"
	"github.com/YuminosukeSato/medimg/core/model"
	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/imageio"
	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// Assembler produces (inputs, targets) for a slice of the dataset index.
// It keeps no state between calls.
type Assembler struct {
	pipeline   *Pipeline
	augmenter  model.Augmenter
	normalizer model.Normalizer
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAugmenter sets the augmenter used for roles that enable augmentation.
func WithAugmenter(a model.Augmenter) AssemblerOption {
	return func(as *Assembler) {
		as.augmenter = a
	}
}

// WithNormalizer sets the normalizer used outside raw mode.
func WithNormalizer(n model.Normalizer) AssemblerOption {
	return func(as *Assembler) {
		as.normalizer = n
	}
}

// NewAssembler creates an Assembler over pipeline.
func NewAssembler(pipeline *Pipeline, opts ...AssemblerOption) *Assembler {
	as := &Assembler{pipeline: pipeline}
	for _, opt := range opts {
		opt(as)
	}
	return as
}

// Config returns the image configuration of the pipeline.
func (as *Assembler) Config() config.ImageConfig {
	return as.pipeline.Config()
}

// Pipeline returns the underlying pipeline.
func (as *Assembler) Pipeline() *Pipeline {
	return as.pipeline
}

// transforms picks the augmenter and normalizer allowed for mode. Augmentation
// runs only for train and dev when enabled for that role; normalization runs
// for every mode except raw.
func (as *Assembler) transforms(mode imageio.Mode) (model.Augmenter, model.Normalizer) {
	aug := as.Config().Augment
	var a model.Augmenter
	if (mode == imageio.ModeTrain && aug.TrainAugmentation) || (mode == imageio.ModeDev && aug.DevAugmentation) {
		a = as.augmenter
	}
	var n model.Normalizer
	if mode != imageio.ModeRaw {
		n = as.normalizer
	}
	return a, n
}

// Assemble loads imageIDs and pairs them with labels. labels[i] belongs to
// imageIDs[i]; all label vectors must share one length.
func (as *Assembler) Assemble(imageIDs []string, labels [][]float64, mode imageio.Mode) (*tensor.Tensor, *Targets, error) {
	if !mode.Valid() {
		return nil, nil, errors.NewValidationError("mode", "unknown mode", mode)
	}
	if len(imageIDs) != len(labels) {
		return nil, nil, errors.NewDimensionError("Assembler.Assemble", len(imageIDs), len(labels), 0)
	}

	targets, err := NewTargets(labels, as.Config().Multibinary())
	if err != nil {
		return nil, nil, err
	}

	aug, norm := as.transforms(mode)
	inputs, err := as.pipeline.Generate(imageIDs, mode, aug, norm)
	if err != nil {
		return nil, nil, err
	}

	as.pipeline.logger.Debug("Batch assembled",
		log.PhaseKey, string(mode),
		log.ShapeKey, inputs.Shape(),
		log.ClassesKey, targets.Classes(),
		"multibinary", targets.Multibinary(),
	)
	return inputs, targets, nil
}
