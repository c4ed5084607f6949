package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Split is a patient-disjoint partition of an index.
type Split struct {
	Train *Index
	Dev   *Index
	Test  *Index
}

// SplitByPatient partitions ix so that no patient appears in two subsets.
// Patients are shuffled with seed; trainRatio and devRatio are percentages of
// the patient count (floored) and the remaining patients form the test subset.
// Row order inside each subset follows ix.
func SplitByPatient(ix *Index, trainRatio, devRatio float64, seed uint64) (*Split, error) {
	if trainRatio < 0 || devRatio < 0 || trainRatio+devRatio > 100 {
		return nil, errors.NewConfigurationError("train_patient_ratio",
			"ratios must be non-negative and sum to at most 100", [2]float64{trainRatio, devRatio})
	}

	patients := ix.PatientIDs()
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(patients), func(i, j int) {
		patients[i], patients[j] = patients[j], patients[i]
	})

	nTrain := int(math.Floor(float64(len(patients)) * trainRatio / 100))
	nDev := int(math.Floor(float64(len(patients)) * devRatio / 100))

	const (
		train = iota
		dev
		test
	)
	subsetOf := make(map[string]int, len(patients))
	for i, p := range patients {
		switch {
		case i < nTrain:
			subsetOf[p] = train
		case i < nTrain+nDev:
			subsetOf[p] = dev
		default:
			subsetOf[p] = test
		}
	}

	var parts [3][]Row
	for _, r := range ix.rows {
		s := subsetOf[r.PatientID]
		parts[s] = append(parts[s], r)
	}
	return &Split{
		Train: ix.subset(parts[train]),
		Dev:   ix.subset(parts[dev]),
		Test:  ix.subset(parts[test]),
	}, nil
}
