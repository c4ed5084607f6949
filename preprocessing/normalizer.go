package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medimg/core/model"
	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// minStd 未満の標準偏差は1として扱う（ゼロ除算を避ける）
const minStd = 1e-8

// SamplewiseNormalizer は画像ごとに平均0、標準偏差1へ標準化する
// 学習すべき統計量を持たないため、Fitは不要
type SamplewiseNormalizer struct{}

// NewSamplewiseNormalizer は新しいSamplewiseNormalizerを作成する
func NewSamplewiseNormalizer() *SamplewiseNormalizer {
	return &SamplewiseNormalizer{}
}

// Apply は [N, H, W, C] のバッチを画像単位で標準化した新しいテンソルを返す
func (s *SamplewiseNormalizer) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.NewDimensionError("SamplewiseNormalizer.Apply", 4, x.Rank(), 0)
	}
	out := x.Clone()
	for i := 0; i < out.Dim(0); i++ {
		sample := out.Sample(i).Data()
		mean, std := stat.PopMeanStdDev(sample, nil)
		if std < minStd {
			std = 1.0
		}
		for j, v := range sample {
			sample[j] = (v - mean) / std
		}
	}
	return out, nil
}

// String は正規化器の文字列表現を返す
func (s *SamplewiseNormalizer) String() string {
	return "SamplewiseNormalizer()"
}

// FeaturewiseNormalizer はチャンネルごとの平均・標準偏差で標準化する
// 統計量は設定値として与えるか、学習データからFitで求める
type FeaturewiseNormalizer struct {
	model.BaseEstimator

	// Mean は各チャンネルの平均値
	Mean []float64

	// Std は各チャンネルの標準偏差
	Std []float64
}

// NewFeaturewiseNormalizer は未学習のFeaturewiseNormalizerを作成する
//
// 使用例:
//
//	norm := preprocessing.NewFeaturewiseNormalizer()
//	err := norm.Fit(sampleBatch)
//	normalized, err := norm.Apply(batch)
func NewFeaturewiseNormalizer() *FeaturewiseNormalizer {
	return &FeaturewiseNormalizer{}
}

// NewFeaturewiseNormalizerWithStats は固定の統計量で学習済みのFeaturewiseNormalizerを作成する
func NewFeaturewiseNormalizerWithStats(mean, std []float64) (*FeaturewiseNormalizer, error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, errors.NewDimensionError("NewFeaturewiseNormalizerWithStats", len(mean), len(std), 0)
	}
	for _, s := range std {
		if s <= 0 {
			return nil, errors.NewValidationError("std", "must be positive", std)
		}
	}
	f := &FeaturewiseNormalizer{
		Mean: append([]float64(nil), mean...),
		Std:  append([]float64(nil), std...),
	}
	f.SetFitted(0)
	return f, nil
}

// Fit は [N, H, W, C] のテンソルからチャンネルごとの平均と標準偏差を計算する
func (f *FeaturewiseNormalizer) Fit(x *tensor.Tensor) error {
	if x.Rank() != 4 {
		return errors.NewDimensionError("FeaturewiseNormalizer.Fit", 4, x.Rank(), 0)
	}
	if x.Len() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "FeaturewiseNormalizer.Fit")
	}

	c := x.Dim(3)
	channels := make([][]float64, c)
	for i := range channels {
		channels[i] = make([]float64, 0, x.Len()/c)
	}
	for i, v := range x.Data() {
		channels[i%c] = append(channels[i%c], v)
	}

	f.Mean = make([]float64, c)
	f.Std = make([]float64, c)
	for ch, vals := range channels {
		f.Mean[ch], f.Std[ch] = stat.PopMeanStdDev(vals, nil)
		if f.Std[ch] < minStd {
			f.Std[ch] = 1.0
		}
	}

	f.SetFitted(x.Dim(0))
	return nil
}

// Apply は学習済みの統計量でバッチを標準化した新しいテンソルを返す
func (f *FeaturewiseNormalizer) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("FeaturewiseNormalizer", "Apply")
	}
	if x.Rank() != 4 {
		return nil, errors.NewDimensionError("FeaturewiseNormalizer.Apply", 4, x.Rank(), 0)
	}
	c := x.Dim(3)
	if c != len(f.Mean) {
		return nil, errors.NewDimensionError("FeaturewiseNormalizer.Apply", len(f.Mean), c, 3)
	}

	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		ch := i % c
		data[i] = (v - f.Mean[ch]) / f.Std[ch]
	}
	return out, nil
}

// InverseApply は標準化されたバッチを元のスケールに戻す
func (f *FeaturewiseNormalizer) InverseApply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("FeaturewiseNormalizer", "InverseApply")
	}
	if x.Rank() != 4 || x.Dim(3) != len(f.Mean) {
		return nil, errors.NewDimensionError("FeaturewiseNormalizer.InverseApply", len(f.Mean), x.Dim(x.Rank()-1), 3)
	}

	out := x.Clone()
	data := out.Data()
	c := len(f.Mean)
	for i, v := range data {
		ch := i % c
		data[i] = v*f.Std[ch] + f.Mean[ch]
	}
	return out, nil
}

// String は正規化器の文字列表現を返す
func (f *FeaturewiseNormalizer) String() string {
	if !f.IsFitted() {
		return "FeaturewiseNormalizer()"
	}
	return fmt.Sprintf("FeaturewiseNormalizer(mean=%v, std=%v)", f.Mean, f.Std)
}
