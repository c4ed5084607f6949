// Package preprocessing は画像バッチの正規化とデータ拡張を提供する
package preprocessing

import (
	"github.com/YuminosukeSato/medimg/config"
	"github.com/YuminosukeSato/medimg/core/model"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// NewNormalizer は設定に応じた正規化器を返す
// method が none の場合は nil を返す。featurewise で統計量が未指定の場合は
// 未学習の正規化器を返すので、呼び出し側で Fit する必要がある
func NewNormalizer(cfg config.NormalizeConfig) (model.Normalizer, error) {
	switch cfg.Method {
	case config.NormalizeNone:
		return nil, nil
	case config.NormalizeSamplewise:
		return NewSamplewiseNormalizer(), nil
	case config.NormalizeFeaturewise:
		if len(cfg.Mean) == 0 {
			return NewFeaturewiseNormalizer(), nil
		}
		norm, err := NewFeaturewiseNormalizerWithStats(cfg.Mean, cfg.Std)
		if err != nil {
			return nil, err
		}
		return norm, nil
	default:
		return nil, errors.NewConfigurationError("normalization.method", "unknown method", cfg.Method)
	}
}

// NewAugmenter は設定に応じたデータ拡張器を返す
// どのロールでも拡張が無効、または変換が一つも選ばれていない場合は nil を返す
func NewAugmenter(cfg config.AugmentConfig) model.Augmenter {
	if !cfg.TrainAugmentation && !cfg.DevAugmentation {
		return nil
	}
	if !cfg.FlipHorizontal && !cfg.FlipVertical && cfg.MaxShift == 0 {
		return nil
	}
	return NewRandomAugmenter(cfg.FlipHorizontal, cfg.FlipVertical, cfg.MaxShift, cfg.Seed)
}
