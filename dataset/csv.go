package dataset

import (
	"encoding/csv"
	"io"

	"github.com/spf13/afero"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Column names of the data entry file.
const (
	ColumnImageIndex    = "Image Index"
	ColumnFindingLabels = "Finding Labels"
	ColumnPatientID     = "Patient ID"
)

// LoadCSV reads a data entry file from fs and encodes its labels. Columns other
// than the image, label and patient columns are ignored.
func LoadCSV(fs afero.Fs, path string, enc *Encoder) (*Index, error) {
	f, err := fs.Open(path)
	if err != nil {
		if ok, _ := afero.Exists(fs, path); !ok {
			return nil, errors.NewNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	idx, err := ReadCSV(f, enc)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return idx, nil
}

// ReadCSV parses a data entry file from r.
func ReadCSV(r io.Reader, enc *Encoder) (*Index, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[h] = i
	}
	var pos [3]int
	for i, name := range []string{ColumnImageIndex, ColumnFindingLabels, ColumnPatientID} {
		c, ok := cols[name]
		if !ok {
			return nil, errors.NewValidationError("header", "missing column", name)
		}
		pos[i] = c
	}
	width := max(pos[0], pos[1], pos[2]) + 1

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(rec) < width {
			return nil, errors.NewValidationError("record", "too few fields", line)
		}
		labels, err := enc.Encode(rec[pos[1]])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		rows = append(rows, Row{ImageID: rec[pos[0]], PatientID: rec[pos[2]], Labels: labels})
	}
	return NewIndex(enc.ClassNames(), rows)
}
