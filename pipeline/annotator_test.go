package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/service/config"
)

func TestDatasetAnnotatorBlankFrames(t *testing.T) {
	cfgSvc := config.NewHardCoded()
	a, err := NewDatasetAnnotator(cfgSvc, "legend")
	if err != nil {
		t.Fatalf("NewDatasetAnnotator error: %v", err)
	}
	if a.Len() != Unbounded {
		t.Fatalf("expected unbounded dataset, got %d", a.Len())
	}

	records := []model.PredictionRecord{
		{Kind: model.KindBoxes, Boxes: []model.Box{{X1: 10, Y1: 10, X2: 50, Y2: 40, Score: 0.9, Label: 1}, {X1: 60, Y1: 60, X2: 90, Y2: 90}}},
		{Kind: model.KindPolylines, Polylines: []model.Polyline{{Points: []model.Point{{X: 0, Y: 0}, {X: 100, Y: 100}, {X: 200, Y: 120}}}}},
		{Kind: model.KindRegions, Regions: []model.Region{{Polygon: []model.Point{{X: 5, Y: 5}, {X: 50, Y: 5}, {X: 50, Y: 50}}, Score: 0.4}}},
		{Kind: model.KindBoxes},
	}
	want := []int{2, 1, 1, 0}

	for i, rec := range records {
		frame, err := a.Annotate(i, rec)
		if err != nil {
			t.Fatalf("Annotate(%d) error: %v", i, err)
		}
		res := cfgSvc.GetResolution()
		if frame.Mat.Cols() != res.X || frame.Mat.Rows() != res.Y || frame.Mat.Channels() != 3 {
			t.Fatalf("frame %d has geometry %dx%dx%d", i, frame.Mat.Cols(), frame.Mat.Rows(), frame.Mat.Channels())
		}
		if frame.Primitives != want[i] || frame.Index != i {
			t.Fatalf("frame %d: primitives=%d index=%d", i, frame.Primitives, frame.Index)
		}
		frame.Mat.Close()
	}
}

func TestDatasetAnnotatorFolder(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		img := gocv.NewMatWithSize(50, 100, gocv.MatTypeCV8UC3)
		ok := gocv.IMWrite(filepath.Join(dir, fmt.Sprintf("%06d.png", i)), img)
		img.Close()
		if !ok {
			t.Fatalf("IMWrite failed")
		}
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	body := "task: boxes\ndatasets:\n  test:\n    parameters:\n      img_size: [36, 64]\n      root: .\n      pattern: \"*.png\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgSvc, err := config.NewYAML(cfgPath)
	if err != nil {
		t.Fatalf("NewYAML error: %v", err)
	}

	a, err := NewDatasetAnnotator(cfgSvc, "")
	if err != nil {
		t.Fatalf("NewDatasetAnnotator error: %v", err)
	}
	if a.Len() != 3 {
		t.Fatalf("expected 3 frames, got %d", a.Len())
	}

	frame, err := a.Annotate(2, model.PredictionRecord{Kind: model.KindBoxes})
	if err != nil {
		t.Fatalf("Annotate error: %v", err)
	}
	defer frame.Mat.Close()
	if frame.Mat.Cols() != 64 || frame.Mat.Rows() != 36 {
		t.Fatalf("dataset frame not brought to the configured size: %dx%d", frame.Mat.Cols(), frame.Mat.Rows())
	}

	if _, err := a.Annotate(3, model.PredictionRecord{Kind: model.KindBoxes}); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestDatasetAnnotatorEmptyFolder(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "task: boxes\ndatasets:\n  test:\n    parameters:\n      img_size: [36, 64]\n      root: .\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgSvc, err := config.NewYAML(cfgPath)
	if err != nil {
		t.Fatalf("NewYAML error: %v", err)
	}

	if _, err := NewDatasetAnnotator(cfgSvc, ""); err == nil {
		t.Fatalf("expected error for a folder without frames")
	}
}
