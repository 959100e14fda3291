package data

import "github.com/khaledhikmat/vs-render/model"

type IService interface {
	// ArtifactExists reports whether path names an existing regular file.
	ArtifactExists(path string) bool
	// RetrievePredictions loads the ordered prediction collection at path and
	// resolves every record to kind.
	RetrievePredictions(path string, kind model.RecordKind) (model.PredictionSequence, error)
	// RetrieveRates loads the timing log at path. A missing file yields an
	// absent sequence and no error.
	RetrieveRates(path string) (model.RateSequence, error)
}
