// Package config holds the dataset, image and logging settings consumed by the
// loader, batch generator and class weight calculation.
//
// Configuration is read from YAML on top of Default(), so a file only has to
// name the keys it changes:
//
//	dataset:
//	  data_entry_file: /data/Data_Entry_2017.csv
//	  class_names: [Atelectasis, Effusion, Infiltration]
//	  positive_weights_multiply: 1.5
//	image:
//	  image_dir: /data/images
//	  img_dim: 224
//	  scale: 0.00392156862745098
//	  class_mode: multibinary
package config

import (
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// Color modes.
const (
	ColorModeGrayscale = "grayscale"
	ColorModeRGB       = "rgb"
)

// Class modes. Multibinary splits targets into one vector per class for models
// with independent binary output heads.
const (
	ClassModeMultibinary = "multibinary"
	ClassModeMultiLabel  = "multilabel"
)

// Normalization methods.
const (
	NormalizeSamplewise  = "samplewise"
	NormalizeFeaturewise = "featurewise"
	NormalizeNone        = "none"
)

// Config is the root of the YAML document.
type Config struct {
	Dataset DatasetConfig `yaml:"dataset" json:"dataset"`
	Image   ImageConfig   `yaml:"image" json:"image"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// DatasetConfig describes the dataset index and how labels are weighted.
type DatasetConfig struct {
	DataEntryFile string   `yaml:"data_entry_file" json:"data_entry_file"`
	ClassNames    []string `yaml:"class_names" json:"class_names"`

	// PositiveWeightsMultiply inflates the negative-class cost in the
	// inverse-propensity weights.
	PositiveWeightsMultiply float64 `yaml:"positive_weights_multiply" json:"positive_weights_multiply"`
	UseClassBalancing       bool    `yaml:"use_class_balancing" json:"use_class_balancing"`
	// BalancingMultiply is the target mean of the per-class balancing factors.
	// It is unrelated to PositiveWeightsMultiply.
	BalancingMultiply float64 `yaml:"balancing_multiply" json:"balancing_multiply"`

	TrainPatientRatio float64 `yaml:"train_patient_ratio" json:"train_patient_ratio"`
	DevPatientRatio   float64 `yaml:"dev_patient_ratio" json:"dev_patient_ratio"`
	RandomState       uint64  `yaml:"split_dataset_random_state" json:"split_dataset_random_state"`

	FinalActivation string  `yaml:"final_activation" json:"final_activation"`
	Dilation        float64 `yaml:"dilation" json:"dilation"`
}

// ImageConfig describes how images are read and shaped into batches.
type ImageConfig struct {
	ImageDir string `yaml:"image_dir" json:"image_dir"`
	// ImgDim is the square target size. 0 disables resizing.
	ImgDim int `yaml:"img_dim" json:"img_dim"`
	// Scale multiplies pixel values after resizing. nil disables scaling.
	Scale          *float64 `yaml:"scale" json:"scale,omitempty"`
	ColorMode      string  `yaml:"color_mode" json:"color_mode"`
	BatchSize      int     `yaml:"batch_size" json:"batch_size"`
	ClassMode      string  `yaml:"class_mode" json:"class_mode"`
	AllowNonSquare bool    `yaml:"allow_non_square" json:"allow_non_square"`
	// Workers bounds concurrent image decoding within a batch. 0 uses all CPUs.
	Workers int `yaml:"workers" json:"workers"`

	Augment   AugmentConfig   `yaml:"augmentation" json:"augmentation"`
	Normalize NormalizeConfig `yaml:"normalization" json:"normalization"`
}

// AugmentConfig enables batch augmentation per sequence role and selects the
// random transforms applied.
type AugmentConfig struct {
	TrainAugmentation bool `yaml:"train_augmentation" json:"train_augmentation"`
	DevAugmentation   bool `yaml:"dev_augmentation" json:"dev_augmentation"`

	FlipHorizontal bool `yaml:"flip_horizontal" json:"flip_horizontal"`
	FlipVertical   bool `yaml:"flip_vertical" json:"flip_vertical"`
	// MaxShift is the largest translation as a fraction of width/height.
	MaxShift float64 `yaml:"max_shift" json:"max_shift"`
	Seed     uint64  `yaml:"seed" json:"seed"`
}

// NormalizeConfig selects the normalizer. Featurewise normalization uses Mean
// and Std per channel when given, otherwise statistics must be fitted.
type NormalizeConfig struct {
	Method string    `yaml:"method" json:"method"`
	Mean   []float64 `yaml:"mean" json:"mean,omitempty"`
	Std    []float64 `yaml:"std" json:"std,omitempty"`
}

// LogConfig selects the log backend and level.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// Format is "json" (slog) or "zerolog".
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used for any key a YAML file omits.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			PositiveWeightsMultiply: 1,
			UseClassBalancing:       true,
			BalancingMultiply:       10,
			TrainPatientRatio:       70,
			DevPatientRatio:         10,
			RandomState:             0,
			FinalActivation:         "softmax",
			Dilation:                1,
		},
		Image: ImageConfig{
			ColorMode: ColorModeGrayscale,
			BatchSize: 32,
			ClassMode: ClassModeMultiLabel,
			Normalize: NormalizeConfig{Method: NormalizeSamplewise},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML file from fs, layers it over Default and validates it.
func Load(fs afero.Fs, path string) (*Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would corrupt dataset coverage or produce
// inconsistent tensors. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	d, im := &c.Dataset, &c.Image

	if len(d.ClassNames) == 0 {
		return errors.NewConfigurationError("class_names", "must not be empty", d.ClassNames)
	}
	seen := make(map[string]struct{}, len(d.ClassNames))
	for _, n := range d.ClassNames {
		if n == "" {
			return errors.NewConfigurationError("class_names", "must not contain empty names", d.ClassNames)
		}
		if _, dup := seen[n]; dup {
			return errors.NewConfigurationError("class_names", "duplicate class name", n)
		}
		seen[n] = struct{}{}
	}
	if d.PositiveWeightsMultiply <= 0 {
		return errors.NewConfigurationError("positive_weights_multiply", "must be positive", d.PositiveWeightsMultiply)
	}
	if d.BalancingMultiply <= 0 {
		return errors.NewConfigurationError("balancing_multiply", "must be positive", d.BalancingMultiply)
	}
	if d.TrainPatientRatio < 0 || d.DevPatientRatio < 0 || d.TrainPatientRatio+d.DevPatientRatio > 100 {
		return errors.NewConfigurationError("train_patient_ratio", "train and dev ratios must be non-negative and sum to at most 100",
			[2]float64{d.TrainPatientRatio, d.DevPatientRatio})
	}
	if d.Dilation < 1 {
		return errors.NewConfigurationError("dilation", "must be >= 1, a smaller value truncates the dataset every epoch", d.Dilation)
	}

	if im.BatchSize <= 0 {
		return errors.NewConfigurationError("batch_size", "must be positive", im.BatchSize)
	}
	if im.ImgDim < 0 {
		return errors.NewConfigurationError("img_dim", "must be >= 0", im.ImgDim)
	}
	if im.Scale != nil && *im.Scale <= 0 {
		return errors.NewConfigurationError("scale", "must be positive when set", *im.Scale)
	}
	if im.Workers < 0 {
		return errors.NewConfigurationError("workers", "must be >= 0", im.Workers)
	}
	switch im.ColorMode {
	case ColorModeGrayscale, ColorModeRGB:
	default:
		return errors.NewConfigurationError("color_mode", "must be grayscale or rgb", im.ColorMode)
	}
	switch im.ClassMode {
	case ClassModeMultibinary, ClassModeMultiLabel:
	default:
		return errors.NewConfigurationError("class_mode", "must be multibinary or multilabel", im.ClassMode)
	}
	if im.Augment.MaxShift < 0 || im.Augment.MaxShift >= 1 {
		return errors.NewConfigurationError("max_shift", "must be in [0, 1)", im.Augment.MaxShift)
	}

	n := im.Normalize
	switch n.Method {
	case NormalizeSamplewise, NormalizeNone:
	case NormalizeFeaturewise:
		if len(n.Mean) != len(n.Std) {
			return errors.NewConfigurationError("normalization.std", "must have the same length as mean", n.Std)
		}
		if len(n.Mean) > 0 && len(n.Mean) != im.Channels() {
			return errors.NewConfigurationError("normalization.mean", "must have one value per channel", n.Mean)
		}
		for _, s := range n.Std {
			if s <= 0 {
				return errors.NewConfigurationError("normalization.std", "must be positive", n.Std)
			}
		}
	default:
		return errors.NewConfigurationError("normalization.method", "unknown method", n.Method)
	}

	if !log.ValidLevel(c.Log.Level) {
		return errors.NewConfigurationError("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "zerolog":
	default:
		return errors.NewConfigurationError("log.format", "must be json or zerolog", c.Log.Format)
	}
	return nil
}

// Channels is the channel count of loaded images.
func (im ImageConfig) Channels() int {
	if im.ColorMode == ColorModeGrayscale {
		return 1
	}
	return 3
}

// Multibinary reports whether targets are split per class.
func (im ImageConfig) Multibinary() bool {
	return im.ClassMode == ClassModeMultibinary
}

// JSON renders the effective configuration for diagnostics.
func (c *Config) JSON() (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding config")
	}
	return string(b), nil
}

// Float returns a pointer to v, for optional settings such as ImageConfig.Scale.
func Float(v float64) *float64 {
	return &v
}
