package config

import (
	"image"

	"github.com/khaledhikmat/vs-render/model"
)

type hardcodedService struct {
}

func NewHardCoded() IService {
	return &hardcodedService{}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return 5
}

func (svc *hardcodedService) GetExperimentsFolder() string {
	return "./experiments"
}

func (svc *hardcodedService) GetTask() model.RecordKind {
	return model.KindPolylines
}

func (svc *hardcodedService) GetResolution() image.Point {
	return image.Pt(640, 360)
}

func (svc *hardcodedService) GetCodec() string {
	return DefaultCodec
}

func (svc *hardcodedService) GetFramesFolder() string {
	return ""
}

func (svc *hardcodedService) GetFramesPattern() string {
	return DefaultFramesPattern
}

func (svc *hardcodedService) GetFramesCount() int {
	return 0
}

func (svc *hardcodedService) GetLabels() []string {
	return nil
}

func (svc *hardcodedService) GetOverlayAnchor() image.Point {
	return image.Pt(10, 30)
}
