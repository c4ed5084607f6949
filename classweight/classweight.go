// Package classweight computes inverse-propensity class weights for
// multi-label training and optionally balances them across classes.
package classweight

import (
	"bytes"
	"io"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/medimg/pkg/errors"
	"github.com/YuminosukeSato/medimg/pkg/log"
)

// DefaultBalancingMultiply is the mean balancing factor used when none is given.
const DefaultBalancingMultiply = 10.0

// ClassCount is the number of positive samples observed for one class.
type ClassCount struct {
	Name     string
	Positive int
}

// Weight holds the loss weights for a negative (0) and a positive (1) label.
type Weight struct {
	Negative float64
	Positive float64
}

// Table maps class names to weights and keeps the class order it was built with.
type Table struct {
	names   []string
	weights map[string]Weight
	factors map[string]float64
}

func newTable(n int) *Table {
	return &Table{
		names:   make([]string, 0, n),
		weights: make(map[string]Weight, n),
		factors: make(map[string]float64, n),
	}
}

func (t *Table) put(name string, w Weight, factor float64) {
	if _, ok := t.weights[name]; !ok {
		t.names = append(t.names, name)
	}
	t.weights[name] = w
	t.factors[name] = factor
}

// Names returns the class names in table order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Len returns the number of classes.
func (t *Table) Len() int {
	return len(t.names)
}

// Get returns the weights of a class.
func (t *Table) Get(name string) (Weight, bool) {
	w, ok := t.weights[name]
	return w, ok
}

// Factor returns the balancing factor applied to a class, 1 when the table
// was computed without balancing.
func (t *Table) Factor(name string) float64 {
	f, ok := t.factors[name]
	if !ok {
		return 0
	}
	return f
}

type weightJSON struct {
	Negative float64 `json:"0"`
	Positive float64 `json:"1"`
	Factor   float64 `json:"factor,omitempty"`
}

// MarshalJSON renders {"Class":{"0":w0,"1":w1},...} with classes in table order.
// A balanced class also carries its "factor"; unbalanced classes omit it.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		w := t.weights[name]
		wj := weightJSON{Negative: w.Negative, Positive: w.Positive}
		if f := t.factors[name]; f != 1 {
			wj.Factor = f
		}
		val, err := json.Marshal(wj)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ReadJSON decodes a table written by MarshalJSON. JSON objects carry no
// order, so classNames fixes it; every class must be present. A class without
// a "factor" key was not balanced and reports a factor of 1.
func ReadJSON(r io.Reader, classNames []string) (*Table, error) {
	var raw map[string]weightJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding class weights")
	}
	t := newTable(len(classNames))
	for _, name := range classNames {
		w, ok := raw[name]
		if !ok {
			return nil, errors.NewValidationError("class_weights", "missing class", name)
		}
		factor := w.Factor
		switch {
		case factor == 0:
			factor = 1
		case factor < 0:
			return nil, errors.NewValidationError("class_weights", "negative balancing factor for class "+name, factor)
		}
		t.put(name, Weight{Negative: w.Negative, Positive: w.Positive}, factor)
	}
	return t, nil
}

// Option configures Compute.
type Option func(*options)

type options struct {
	balancingMultiply float64
	logger            log.Logger
}

// WithBalancingMultiply sets the mean balancing factor. It is independent of
// the positive weights multiply passed to Compute.
func WithBalancingMultiply(m float64) Option {
	return func(o *options) {
		o.balancingMultiply = m
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Compute builds the weight table for total samples and the per-class positive
// counts.
//
// For a class with p positives, denominator = (total-p)*multiply + p, and the
// weights are p/denominator for label 0 and (denominator-p)/denominator for
// label 1. With useBalancing each class is further scaled by
// (1/p) * numClasses * balancingMultiply / sum(1/p), so factor*p is the same
// for every class. Balancing a class with no positives is a
// DivisionHazardError.
func Compute(total int, counts []ClassCount, multiply float64, useBalancing bool, opts ...Option) (*Table, error) {
	o := options{balancingMultiply: DefaultBalancingMultiply, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(log.ComponentKey, "classweight")

	if err := validate(total, counts, multiply); err != nil {
		return nil, err
	}
	if useBalancing && o.balancingMultiply <= 0 {
		return nil, errors.NewConfigurationError("balancing_multiply", "must be positive", o.balancingMultiply)
	}

	factors := make([]float64, len(counts))
	for i := range factors {
		factors[i] = 1
	}
	if useBalancing {
		var err error
		factors, err = balancingFactors(counts, o.balancingMultiply)
		if err != nil {
			return nil, err
		}
	}

	table := newTable(len(counts))
	values := make([]float64, 0, 2*len(counts))
	for i, c := range counts {
		p := float64(c.Positive)
		denom := float64(total-c.Positive)*multiply + p
		w := Weight{
			Negative: p / denom * factors[i],
			Positive: (denom - p) / denom * factors[i],
		}
		if c.Positive == 0 || c.Positive == total {
			errors.Warn(errors.NewDegenerateWeightWarning(c.Name, c.Positive, total))
		}
		table.put(c.Name, w, factors[i])
		values = append(values, w.Negative, w.Positive)
	}

	if err := errors.CheckNumericalStability("classweight.Compute", values); err != nil {
		return nil, err
	}

	logger.Info("Class weights computed",
		log.SamplesKey, total,
		log.ClassesKey, len(counts),
		"balancing", useBalancing,
	)
	return table, nil
}

func validate(total int, counts []ClassCount, multiply float64) error {
	if total <= 0 {
		return errors.NewValidationError("total", "must be positive", total)
	}
	if len(counts) == 0 {
		return errors.NewValidationError("counts", "at least one class is required", counts)
	}
	if multiply <= 0 {
		return errors.NewConfigurationError("positive_weights_multiply", "must be positive", multiply)
	}
	seen := make(map[string]struct{}, len(counts))
	for _, c := range counts {
		if _, dup := seen[c.Name]; dup {
			return errors.NewValidationError("counts", "duplicate class", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Positive < 0 || c.Positive > total {
			return errors.NewValidationError("counts", "positive count must be within [0, total] for class "+c.Name, c.Positive)
		}
	}
	return nil
}

func balancingFactors(counts []ClassCount, balancingMultiply float64) ([]float64, error) {
	recip := make([]float64, len(counts))
	for i, c := range counts {
		if c.Positive == 0 {
			return nil, errors.NewDivisionHazardError("classweight.balancing", c.Name)
		}
		recip[i] = 1 / float64(c.Positive)
	}
	floats.Scale(float64(len(counts))*balancingMultiply/floats.Sum(recip), recip)
	return recip, nil
}
