// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// データ読み込みとクラス重み計算で発生する失敗を型付きのエラーとして表現し、
// cockroachdb/errors によるスタックトレースと zerolog 向けの構造化情報を付与します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("medimg-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DegenerateWeightWarning はクラス重みの片側が0になる場合の警告です。
// 陽性数が0、または全サンプルが陽性のクラスで発生します。
type DegenerateWeightWarning struct {
	Class    string
	Positive int
	Total    int
}

func (w *DegenerateWeightWarning) Error() string {
	return fmt.Sprintf("class '%s' has %d positives out of %d samples; one of its weights is zero", w.Class, w.Positive, w.Total)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DegenerateWeightWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("class", w.Class).
		Int("positive", w.Positive).
		Int("total", w.Total).
		Str("type", "DegenerateWeightWarning")
}

// NewDegenerateWeightWarning は新しいDegenerateWeightWarningを作成します。
func NewDegenerateWeightWarning(class string, positive, total int) *DegenerateWeightWarning {
	return &DegenerateWeightWarning{Class: class, Positive: positive, Total: total}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFoundError は参照された画像ファイルが存在しない場合のエラーです。
// バッチ取得は即座に失敗し、リトライはしません。
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("medimg: %s not found", e.Path)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("type", "NotFoundError")
}

// NewNotFoundError は新しいNotFoundErrorを作成し、スタックトレースを付与します。
func NewNotFoundError(path string) error {
	return errors.WithStack(&NotFoundError{Path: path})
}

// ConfigurationError はデータセットの網羅性を壊す設定が与えられた場合のエラーです。
// バッチが生成される前、構築時に返されます。
type ConfigurationError struct {
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("medimg: invalid configuration '%s': %s (got: %v)", e.Param, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ConfigurationError{Param: param, Reason: reason, Value: value})
}

// DivisionHazardError は陽性数0のクラスに対してバランシングを行おうとした場合のエラーです。
// 黙ってスキップすると重みテーブルとクラス名の対応がずれるため、必ず報告します。
type DivisionHazardError struct {
	Op    string
	Class string
}

func (e *DivisionHazardError) Error() string {
	return fmt.Sprintf("medimg: %s: class '%s' has zero positive samples, reciprocal is undefined", e.Op, e.Class)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DivisionHazardError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("class", e.Class).
		Str("type", "DivisionHazardError")
}

// NewDivisionHazardError は新しいDivisionHazardErrorを作成し、スタックトレースを付与します。
func NewDivisionHazardError(op, class string) error {
	return errors.WithStack(&DivisionHazardError{Op: op, Class: class})
}

// NotFittedError は統計量が未学習の正規化器を適用した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("medimg: %s: statistics are not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("medimg: %s: dimension mismatch on axis %d. Expected %d, got %d", e.Op, e.Axis, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError はコアに入ってきたデータの検証に失敗した場合のエラーです。
// ラベルベクトル長の不一致などは、データが最初に入る境界で報告されます。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("medimg: validation failed for '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
