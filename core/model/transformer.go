package model

import "github.com/YuminosukeSato/medimg/core/tensor"

// TensorTransformer はバッチテンソル全体を変換するケイパビリティ
// 入力は [N, H, W, C] のテンソルで、同じ形状のテンソルを返す
type TensorTransformer interface {
	Apply(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Augmenter はバッチ単位でデータ拡張を行う
// サンプル間で相関のある変換を許すため、画像ごとではなくバッチごとに呼ばれる
type Augmenter interface {
	TensorTransformer
}

// Normalizer は（拡張後の）バッチを正規化する
type Normalizer interface {
	TensorTransformer
}

// Fitter はデータセットから統計量を学習する正規化器のインターフェース
type Fitter interface {
	Fit(x *tensor.Tensor) error
}

// TransformerFunc は関数をTensorTransformerとして扱うアダプタ
type TransformerFunc func(x *tensor.Tensor) (*tensor.Tensor, error)

// Apply はfを呼び出す
func (f TransformerFunc) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	return f(x)
}

// EstimatorState は統計量の学習状態を表す
type EstimatorState int

const (
	// NotFitted は統計量が未学習の状態
	NotFitted EstimatorState = iota
	// Fitted は統計量が学習済みの状態
	Fitted
)

// BaseEstimator は統計量を学習する変換器に埋め込む状態管理
type BaseEstimator struct {
	state    EstimatorState
	nSamples int
}

// IsFitted は学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted はnSamples枚の画像から学習済みになったことを記録する
func (e *BaseEstimator) SetFitted(nSamples int) {
	e.state = Fitted
	e.nSamples = nSamples
}

// SamplesSeen は学習に使った画像数を返す
func (e *BaseEstimator) SamplesSeen() int {
	return e.nSamples
}

// Reset は初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
	e.nSamples = 0
}
