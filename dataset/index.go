// Package dataset holds the dataset index: one row per image with its patient
// and multi-hot label vector, plus label encoding, CSV loading and
// patient-level splits.
package dataset

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/medimg/classweight"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Row is one image of the dataset index.
type Row struct {
	ImageID   string
	PatientID string
	// Labels is multi-hot and aligned with the index's class names.
	Labels []float64
}

// Index is an ordered list of rows. Rows are only ever reordered, never edited.
type Index struct {
	classNames []string
	rows       []Row
}

// NewIndex validates rows against classNames and builds an index. Every label
// vector must have one entry per class, each 0 or 1.
func NewIndex(classNames []string, rows []Row) (*Index, error) {
	if len(classNames) == 0 {
		return nil, errors.NewConfigurationError("class_names", "at least one class is required", classNames)
	}
	for i, r := range rows {
		if r.ImageID == "" {
			return nil, errors.NewValidationError("image_id", "empty image id", i)
		}
		if len(r.Labels) != len(classNames) {
			return nil, errors.NewDimensionError("dataset.NewIndex", len(classNames), len(r.Labels), 1)
		}
		for _, v := range r.Labels {
			if v != 0 && v != 1 {
				return nil, errors.NewValidationError("labels", "label values must be 0 or 1 for image "+r.ImageID, v)
			}
		}
	}
	return &Index{
		classNames: append([]string(nil), classNames...),
		rows:       append([]Row(nil), rows...),
	}, nil
}

// Len returns the number of rows.
func (ix *Index) Len() int {
	return len(ix.rows)
}

// ClassNames returns the label axis order.
func (ix *Index) ClassNames() []string {
	return append([]string(nil), ix.classNames...)
}

// Row returns the i-th row in the current order.
func (ix *Index) Row(i int) Row {
	return ix.rows[i]
}

// Rows returns the rows in the current order. The slice must not be modified.
func (ix *Index) Rows() []Row {
	return ix.rows
}

// Slice returns rows [start, end) clamped to the index bounds.
func (ix *Index) Slice(start, end int) []Row {
	start = max(0, min(start, len(ix.rows)))
	end = max(start, min(end, len(ix.rows)))
	return ix.rows[start:end]
}

// Shuffle reorders the rows in place with rng.
func (ix *Index) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(ix.rows), func(i, j int) {
		ix.rows[i], ix.rows[j] = ix.rows[j], ix.rows[i]
	})
}

// PositiveCounts returns, per class in label order, how many rows are positive.
func (ix *Index) PositiveCounts() []classweight.ClassCount {
	counts := make([]classweight.ClassCount, len(ix.classNames))
	for c, name := range ix.classNames {
		counts[c].Name = name
	}
	for _, r := range ix.rows {
		for c, v := range r.Labels {
			if v == 1 {
				counts[c].Positive++
			}
		}
	}
	return counts
}

// PatientIDs returns the distinct patients in order of first appearance.
func (ix *Index) PatientIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range ix.rows {
		if _, ok := seen[r.PatientID]; ok {
			continue
		}
		seen[r.PatientID] = struct{}{}
		ids = append(ids, r.PatientID)
	}
	return ids
}

// subset builds an index over rows without revalidating them.
func (ix *Index) subset(rows []Row) *Index {
	return &Index{classNames: ix.classNames, rows: rows}
}
