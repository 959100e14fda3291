package config

import (
	"image"

	"github.com/khaledhikmat/vs-render/model"
)

const (
	DefaultCodec         = "mp4v"
	DefaultFramesPattern = "*.jpg"
)

// IService exposes the dataset descriptor: geometry, drawing inputs and
// run-wide defaults.
type IService interface {
	GetModeMaxShutdownTime() int
	GetExperimentsFolder() string
	GetTask() model.RecordKind
	// GetResolution returns width in X and height in Y.
	GetResolution() image.Point
	GetCodec() string
	GetFramesFolder() string
	GetFramesPattern() string
	// GetFramesCount is the synthetic frame count used when no frames folder
	// is configured. Zero means one frame per prediction.
	GetFramesCount() int
	GetLabels() []string
	GetOverlayAnchor() image.Point
}
