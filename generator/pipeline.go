// Package generator turns a dataset index into (inputs, targets) batches for a
// training loop.
//
// Pipeline loads and transforms images, Assembler pairs them with targets and
// Sequence iterates the index batch by batch with epoch dilation.
package generator

import (
	"context"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medimg/config"
	"github.com/YuminosukeSato/medimg/core/model"
	"github.com/YuminosukeSato/medimg/core/parallel"
	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/imageio"
	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// parallelThreshold is the batch size below which images are decoded sequentially.
const parallelThreshold = 4

// Pipeline loads a list of images into one [N, H, W, C] tensor and applies the
// optional augmenter and normalizer.
type Pipeline struct {
	loader *imageio.Loader
	logger log.Logger
}

// NewPipeline creates a Pipeline over loader. A nil logger uses the global one.
func NewPipeline(loader *imageio.Loader, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Pipeline{loader: loader, logger: logger.With(log.ComponentKey, "generator")}
}

// Config returns the image configuration of the underlying loader.
func (p *Pipeline) Config() config.ImageConfig {
	return p.loader.Config()
}

// Generate loads imageIDs in order and stacks them. Grayscale images get a
// trailing channel axis of size 1. aug runs before norm; either may be nil.
func (p *Pipeline) Generate(imageIDs []string, mode imageio.Mode, aug model.Augmenter, norm model.Normalizer) (*tensor.Tensor, error) {
	if len(imageIDs) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}

	images := make([]*tensor.Tensor, len(imageIDs))
	err := parallel.ForEach(len(imageIDs), p.Config().Workers, parallelThreshold, func(i int) error {
		img, err := p.loader.Load(imageIDs[i], mode)
		if err != nil {
			return err
		}
		images[i] = img
		return nil
	})
	if err != nil {
		return nil, err
	}

	inputs, err := tensor.Stack(images)
	if err != nil {
		return nil, errors.Wrap(err, "stacking images")
	}
	if p.Config().ColorMode == config.ColorModeGrayscale {
		inputs = inputs.ExpandDims(-1)
	}

	if aug != nil {
		p.logger.Debug("Augmenting batch", log.ShapeKey, inputs.Shape())
		if inputs, err = aug.Apply(inputs); err != nil {
			return nil, errors.Wrap(err, "augmenting batch")
		}
	}

	if norm != nil {
		p.logStats("Image statistics", inputs)
		if inputs, err = norm.Apply(inputs); err != nil {
			return nil, errors.Wrap(err, "normalizing batch")
		}
		p.logStats("Normalized statistics", inputs)
	}
	return inputs, nil
}

func (p *Pipeline) logStats(msg string, x *tensor.Tensor) {
	if !p.logger.Enabled(context.Background(), log.LevelDebug) {
		return
	}
	mean, std := stat.PopMeanStdDev(x.Data(), nil)
	p.logger.Debug(msg, log.MeanKey, mean, log.StdKey, std)
}
