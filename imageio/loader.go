// Package imageio loads single images from the dataset's image directory and
// shapes them for training.
package imageio

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"

	"github.com/YuminosukeSato/medimg/config"
	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// Mode is the role a batch is generated for. It gates resizing, scaling,
// augmentation and normalization.
type Mode string

const (
	ModeTrain Mode = "train"
	ModeDev   Mode = "dev"
	ModeTest  Mode = "test"
	// ModeRaw returns decoded pixels untouched, for inspection only.
	ModeRaw Mode = "raw"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeTrain, ModeDev, ModeTest, ModeRaw:
		return true
	}
	return false
}

// ResizeFilter is the interpolation used for every resize. Bilinear keeps the
// result deterministic and cheap.
var ResizeFilter = imaging.Linear

// Loader reads images from Fs relative to the configured image directory.
type Loader struct {
	fs     afero.Fs
	cfg    config.ImageConfig
	logger log.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the diagnostic logger.
func WithLogger(l log.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// NewLoader creates a Loader. A nil fs reads the host filesystem.
func NewLoader(fs afero.Fs, cfg config.ImageConfig, opts ...Option) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	ld := &Loader{fs: fs, cfg: cfg, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(ld)
	}
	ld.logger = ld.logger.With(log.ComponentKey, "imageio")
	return ld
}

// Config returns the image configuration the loader was built with.
func (ld *Loader) Config() config.ImageConfig {
	return ld.cfg
}

// Path resolves imageID against the image directory.
func (ld *Loader) Path(imageID string) string {
	return filepath.Join(ld.cfg.ImageDir, imageID)
}

// Load decodes one image. The result is [H, W] for grayscale and [H, W, 3]
// (RGB order) for colour images.
//
// Outside ModeRaw the image is resized to ImgDim x ImgDim unless it already has
// that size, and pixel values are multiplied by Scale when one is configured.
// A missing file is a NotFoundError.
func (ld *Loader) Load(imageID string, mode Mode) (_ *tensor.Tensor, err error) {
	path := ld.Path(imageID)
	img, err := ld.decode(path)
	if err != nil {
		return nil, err
	}

	if mode != ModeRaw {
		img, err = ld.resize(img, imageID)
		if err != nil {
			return nil, err
		}
	}

	t := ld.toTensor(img)
	if mode != ModeRaw && ld.cfg.Scale != nil {
		scale := *ld.cfg.Scale
		t.Apply(func(v float64) float64 { return v * scale })
	}
	return t, nil
}

func (ld *Loader) decode(path string) (img image.Image, err error) {
	f, err := ld.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil && info.IsDir() {
		return nil, errors.NewNotFoundError(path)
	}
	if ld.logger.Enabled(context.Background(), log.LevelDebug) {
		ld.logger.Debug("Load image", log.ImagePathKey, path)
	}

	err = errors.SafeExecute("imageio.decode", func() error {
		var decErr error
		img, decErr = imaging.Decode(f)
		return decErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if ld.cfg.ColorMode == config.ColorModeGrayscale {
		img = imaging.Grayscale(img)
	}
	return img, nil
}

func (ld *Loader) resize(img image.Image, imageID string) (image.Image, error) {
	dim := ld.cfg.ImgDim
	size := img.Bounds().Size()
	if dim == 0 {
		return img, nil
	}
	if size.X == dim && size.Y == dim {
		ld.logger.Debug("Skip resizing", log.ImageIDKey, imageID)
		return img, nil
	}
	if size.X != size.Y && !ld.cfg.AllowNonSquare {
		return nil, errors.NewValidationError("image", "non-square image cannot be resized to a square target",
			[2]int{size.X, size.Y})
	}
	return imaging.Resize(img, dim, dim, ResizeFilter), nil
}

// toTensor copies pixels into a float64 tensor with values in [0, 255].
func (ld *Loader) toTensor(img image.Image) *tensor.Tensor {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	h, w := b.Dy(), b.Dx()

	if ld.cfg.ColorMode == config.ColorModeGrayscale {
		t := tensor.New(h, w)
		data := t.Data()
		for y := 0; y < h; y++ {
			row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
			for x := 0; x < w; x++ {
				// imaging.Grayscale writes the luma into R, G and B alike.
				data[y*w+x] = float64(row[x*4])
			}
		}
		return t
	}

	t := tensor.New(h, w, 3)
	data := t.Data()
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			data[o] = float64(row[x*4])
			data[o+1] = float64(row[x*4+1])
			data[o+2] = float64(row[x*4+2])
		}
	}
	return t
}
