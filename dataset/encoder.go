package dataset

import (
	"strings"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// NoFinding is the label of an image with no positive class.
const NoFinding = "No Finding"

// LabelSeparator joins multiple labels in one label string.
const LabelSeparator = "|"

// Encoder turns label strings such as "Effusion|Infiltration" into multi-hot
// vectors ordered by class names.
type Encoder struct {
	classNames []string
	lookup     map[string]int
}

// NewEncoder creates an encoder for classNames.
func NewEncoder(classNames []string) (*Encoder, error) {
	if len(classNames) == 0 {
		return nil, errors.NewConfigurationError("class_names", "at least one class is required", classNames)
	}
	lookup := make(map[string]int, len(classNames))
	for i, name := range classNames {
		if _, dup := lookup[name]; dup {
			return nil, errors.NewConfigurationError("class_names", "duplicate class", name)
		}
		lookup[name] = i
	}
	return &Encoder{classNames: append([]string(nil), classNames...), lookup: lookup}, nil
}

// ClassNames returns the label axis order.
func (e *Encoder) ClassNames() []string {
	return append([]string(nil), e.classNames...)
}

// Encode returns the multi-hot vector for label. NoFinding is the all-zero
// vector. A label that is not a known class is a ValidationError.
func (e *Encoder) Encode(label string) ([]float64, error) {
	vec := make([]float64, len(e.classNames))
	label = strings.TrimSpace(label)
	if label == NoFinding {
		return vec, nil
	}
	for _, l := range strings.Split(label, LabelSeparator) {
		i, ok := e.lookup[strings.TrimSpace(l)]
		if !ok {
			return nil, errors.NewValidationError("label", "unknown class", l)
		}
		vec[i] = 1
	}
	return vec, nil
}

// Decode is the inverse of Encode.
func (e *Encoder) Decode(vec []float64) string {
	var labels []string
	for i, v := range vec {
		if v == 1 && i < len(e.classNames) {
			labels = append(labels, e.classNames[i])
		}
	}
	if len(labels) == 0 {
		return NoFinding
	}
	return strings.Join(labels, LabelSeparator)
}
