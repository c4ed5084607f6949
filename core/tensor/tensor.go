// Package tensor carries image batches on top of gorgonia's dense tensors.
//
// Images are stored row-major as float64 with an explicit shape, [H, W] for a
// grayscale image, [H, W, C] for a colour image and [N, H, W, C] for a batch.
// Labels stay in gonum matrices; only pixel data lives here.
package tensor

import (
	"fmt"

	gt "gorgonia.org/tensor"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Tensor wraps a float64 *tensor.Dense with the panicking index accessors and
// error types the pipeline expects.
type Tensor struct {
	dense *gt.Dense
}

func sizeOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func wrap(data []float64, shape []int) *Tensor {
	return &Tensor{dense: gt.New(gt.WithShape(shape...), gt.WithBacking(data))}
}

// New allocates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
	}
	return wrap(make([]float64, sizeOf(shape)), shape)
}

// FromData wraps data without copying. len(data) must equal the product of shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if n := sizeOf(shape); n != len(data) {
		return nil, errors.NewDimensionError("tensor.FromData", n, len(data), 0)
	}
	return wrap(data, shape), nil
}

// Dense exposes the underlying gorgonia tensor.
func (t *Tensor) Dense() *gt.Dense {
	return t.dense
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return []int(t.dense.Shape().Clone())
}

// Rank is the number of dimensions.
func (t *Tensor) Rank() int {
	return t.dense.Dims()
}

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int {
	return t.dense.Shape()[i]
}

// Len is the total number of elements.
func (t *Tensor) Len() int {
	return t.dense.DataSize()
}

// Data exposes the backing slice. Mutations are visible to the tensor.
func (t *Tensor) Data() []float64 {
	return t.dense.Data().([]float64)
}

// SizeBytes is the memory occupied by the element data.
func (t *Tensor) SizeBytes() uint64 {
	return uint64(t.dense.DataSize()) * uint64(t.dense.Dtype().Size())
}

func (t *Tensor) check(idx []int) {
	shape := t.dense.Shape()
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("tensor: index %v has rank %d, tensor has rank %d", idx, len(idx), len(shape)))
	}
	for i, v := range idx {
		if v < 0 || v >= shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, shape))
		}
	}
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float64 {
	t.check(idx)
	v, err := t.dense.At(idx...)
	if err != nil {
		panic(err)
	}
	return v.(float64)
}

// Set stores v at idx.
func (t *Tensor) Set(v float64, idx ...int) {
	t.check(idx)
	if err := t.dense.SetAt(v, idx...); err != nil {
		panic(err)
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{dense: t.dense.Clone().(*gt.Dense)}
}

// Reshape returns a tensor sharing t's data with a new shape of equal size.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if n := sizeOf(shape); n != t.Len() {
		return nil, errors.NewDimensionError("tensor.Reshape", t.Len(), n, 0)
	}
	d := t.dense.ShallowClone()
	if err := d.Reshape(shape...); err != nil {
		return nil, errors.Wrapf(err, "reshape %v to %v", t.dense.Shape(), shape)
	}
	return &Tensor{dense: d}, nil
}

// ExpandDims inserts an axis of size 1 at position axis. A negative axis counts
// from the end, so -1 appends a trailing axis. The result shares t's data.
func (t *Tensor) ExpandDims(axis int) *Tensor {
	shape := t.dense.Shape()
	if axis < 0 {
		axis = len(shape) + 1 + axis
	}
	if axis < 0 || axis > len(shape) {
		panic(fmt.Sprintf("tensor: axis %d out of range for rank %d", axis, len(shape)))
	}
	expanded := make([]int, 0, len(shape)+1)
	expanded = append(expanded, shape[:axis]...)
	expanded = append(expanded, 1)
	expanded = append(expanded, shape[axis:]...)
	out, err := t.Reshape(expanded...)
	if err != nil {
		panic(err)
	}
	return out
}

// Sample returns the i-th slice along axis 0 as a view sharing t's data.
// t must have rank 2 or more.
func (t *Tensor) Sample(i int) *Tensor {
	shape := t.dense.Shape()
	if len(shape) < 2 || i < 0 || i >= shape[0] {
		panic(fmt.Sprintf("tensor: sample %d out of range for shape %v", i, shape))
	}
	if inner := shape[1:]; sizeOf(inner) == 1 {
		// a one-element slice comes back from Dense.Slice as a scalar
		return wrap(t.Data()[i:i+1], inner)
	}
	view, err := t.dense.Slice(gt.S(i))
	if err != nil {
		panic(err)
	}
	return &Tensor{dense: view.(*gt.Dense)}
}

// Apply replaces every element with fn(element) in place and returns t.
func (t *Tensor) Apply(fn func(float64) float64) *Tensor {
	if _, err := t.dense.Apply(fn, gt.UseUnsafe()); err != nil {
		panic(err)
	}
	return t
}

// Stack joins tensors of identical shape along a new leading axis. The order of
// ts is preserved and the result owns fresh storage.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	inner := ts[0].dense.Shape()
	others := make([]*gt.Dense, 0, len(ts)-1)
	for _, x := range ts[1:] {
		shape := x.dense.Shape()
		if len(shape) != len(inner) {
			return nil, errors.NewDimensionError("tensor.Stack", len(inner), len(shape), -1)
		}
		for ax := range inner {
			if shape[ax] != inner[ax] {
				return nil, errors.NewDimensionError("tensor.Stack", inner[ax], shape[ax], ax+1)
			}
		}
		others = append(others, x.dense)
	}
	if len(others) == 0 {
		// a single tensor still gets its own copy with a leading axis of 1
		return ts[0].Clone().ExpandDims(0), nil
	}
	out, err := ts[0].dense.Stack(0, others...)
	if err != nil {
		return nil, errors.Wrap(err, "stack tensors")
	}
	return &Tensor{dense: out}, nil
}

// String renders the shape, e.g. "Tensor[32 224 224 1]".
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", []int(t.dense.Shape()))
}
