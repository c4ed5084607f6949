// Package log defines standard attribute keys for data loading operations.
//
// Keys follow a hierarchical naming convention (e.g. "data.samples", "image.id")
// so log output can be filtered by subsystem.

package log

// Operation context
const (
	// ComponentKey identifies which package is logging.
	// Examples: "imageio", "generator", "classweight"
	ComponentKey = "ml.component"

	// PhaseKey is the role of the sequence being iterated: train, dev, test or raw.
	PhaseKey = "ml.phase"

	// OperationKey names the operation being performed.
	OperationKey = "ml.operation"
)

// Data shape and characteristics
const (
	// SamplesKey is the number of rows in a dataset index or batch.
	SamplesKey = "data.samples"

	// ClassesKey is the number of classes in the label vector.
	ClassesKey = "data.classes"

	// BatchSizeKey is the configured batch size.
	BatchSizeKey = "data.batch_size"

	// ShapeKey is the shape of a tensor, e.g. [32 224 224 1].
	ShapeKey = "data.shape"

	// DataSizeKey is a human readable memory size of a tensor.
	DataSizeKey = "data.size"

	// StepsKey is the number of physical batches in one pass over the index.
	StepsKey = "data.steps"

	// DilationKey is the epoch dilation factor.
	DilationKey = "data.dilation"
)

// Batch and image context
const (
	// BatchIndexKey is the fetch index requested by the training loop.
	BatchIndexKey = "batch.index"

	// BatchSlotKey is the physical batch after wraparound (index mod steps).
	BatchSlotKey = "batch.slot"

	// PatientIDsKey lists a sample of patient identifiers in a batch.
	PatientIDsKey = "batch.patient_ids"

	// ImageIDKey is the file name of an image relative to the image directory.
	ImageIDKey = "image.id"

	// ImagePathKey is the resolved path of an image file.
	ImagePathKey = "image.path"

	// MeanKey and StdKey record tensor statistics around normalization.
	MeanKey = "stats.mean"
	StdKey  = "stats.std"
)

// Error context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Standard phase values.
const (
	PhaseTrain = "train"
	PhaseDev   = "dev"
	PhaseTest  = "test"
	PhaseRaw   = "raw"
)
