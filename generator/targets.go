package generator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Targets carries the labels of a batch. Matrix is always the [batch, classes]
// multi-hot matrix. In multibinary mode Heads holds one length-batch vector
// per class, one for each binary output head of the model.
type Targets struct {
	Matrix *mat.Dense
	Heads  []*mat.VecDense
}

// LabelMatrix copies label vectors into a [len(labels), classes] matrix.
// Every vector must have the same length.
func LabelMatrix(labels [][]float64) (*mat.Dense, error) {
	if len(labels) == 0 || len(labels[0]) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	classes := len(labels[0])
	m := mat.NewDense(len(labels), classes, nil)
	for i, l := range labels {
		if len(l) != classes {
			return nil, errors.NewDimensionError("generator.LabelMatrix", classes, len(l), 1)
		}
		m.SetRow(i, l)
	}
	return m, nil
}

// NewTargets builds targets from label vectors. With multibinary the matrix is
// transposed and split along the class axis.
func NewTargets(labels [][]float64, multibinary bool) (*Targets, error) {
	m, err := LabelMatrix(labels)
	if err != nil {
		return nil, err
	}
	t := &Targets{Matrix: m}
	if !multibinary {
		return t, nil
	}

	batch, classes := m.Dims()
	perClass := mat.DenseCopyOf(m.T())
	t.Heads = make([]*mat.VecDense, classes)
	for c := range t.Heads {
		t.Heads[c] = mat.NewVecDense(batch, append([]float64(nil), perClass.RawRowView(c)...))
	}
	return t, nil
}

// Multibinary reports whether the targets are split into per-class heads.
func (t *Targets) Multibinary() bool {
	return t.Heads != nil
}

// Len returns the batch size.
func (t *Targets) Len() int {
	r, _ := t.Matrix.Dims()
	return r
}

// Classes returns the number of classes.
func (t *Targets) Classes() int {
	_, c := t.Matrix.Dims()
	return c
}

// Concat rebuilds the [batch, classes] matrix from the heads. Without heads it
// returns a copy of Matrix.
func (t *Targets) Concat() *mat.Dense {
	if !t.Multibinary() {
		return mat.DenseCopyOf(t.Matrix)
	}
	perClass := mat.NewDense(len(t.Heads), t.Heads[0].Len(), nil)
	for c, h := range t.Heads {
		perClass.SetRow(c, mat.Col(nil, 0, h))
	}
	return mat.DenseCopyOf(perClass.T())
}
