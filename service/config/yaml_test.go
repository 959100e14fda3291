package config

import (
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/khaledhikmat/vs-render/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewYAMLDefaults(t *testing.T) {
	path := writeConfig(t, `
task: lanes
datasets:
  test:
    parameters:
      img_size: [360, 640]
      root: frames
      labels: [lane]
`)

	svc, err := NewYAML(path)
	if err != nil {
		t.Fatalf("NewYAML error: %v", err)
	}

	if svc.GetTask() != model.KindPolylines {
		t.Fatalf("unexpected task: %v", svc.GetTask())
	}
	if svc.GetResolution() != image.Pt(640, 360) {
		t.Fatalf("unexpected resolution: %v", svc.GetResolution())
	}
	if svc.GetCodec() != DefaultCodec {
		t.Fatalf("unexpected codec: %q", svc.GetCodec())
	}
	if svc.GetOverlayAnchor() != image.Pt(10, 30) {
		t.Fatalf("unexpected anchor: %v", svc.GetOverlayAnchor())
	}
	if svc.GetFramesPattern() != DefaultFramesPattern {
		t.Fatalf("unexpected pattern: %q", svc.GetFramesPattern())
	}
	if want := filepath.Join(filepath.Dir(path), "frames"); svc.GetFramesFolder() != want {
		t.Fatalf("unexpected frames folder: got %q want %q", svc.GetFramesFolder(), want)
	}
	if !reflect.DeepEqual(svc.GetLabels(), []string{"lane"}) {
		t.Fatalf("unexpected labels: %v", svc.GetLabels())
	}
}

func TestNewYAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
task: regions
datasets:
  test:
    parameters:
      img_size: [720, 1280]
      frames: 12
video:
  codec: avc1
overlay:
  anchor: [20, 40]
`)

	svc, err := NewYAML(path)
	if err != nil {
		t.Fatalf("NewYAML error: %v", err)
	}
	if svc.GetTask() != model.KindRegions {
		t.Fatalf("unexpected task: %v", svc.GetTask())
	}
	if svc.GetCodec() != "avc1" {
		t.Fatalf("unexpected codec: %q", svc.GetCodec())
	}
	if svc.GetOverlayAnchor() != image.Pt(20, 40) {
		t.Fatalf("unexpected anchor: %v", svc.GetOverlayAnchor())
	}
	if svc.GetFramesCount() != 12 {
		t.Fatalf("unexpected frames: %d", svc.GetFramesCount())
	}
	if svc.GetFramesFolder() != "" {
		t.Fatalf("unexpected frames folder: %q", svc.GetFramesFolder())
	}
}

func TestNewYAMLDefaultTaskIsLanes(t *testing.T) {
	svc, err := NewYAML(writeConfig(t, "datasets: {test: {parameters: {img_size: [360, 640]}}}"))
	if err != nil {
		t.Fatalf("NewYAML error: %v", err)
	}
	if svc.GetTask() != model.KindPolylines || NewHardCoded().GetTask() != model.KindPolylines {
		t.Fatalf("expected polylines by default, got %v and %v", svc.GetTask(), NewHardCoded().GetTask())
	}
}

func TestNewYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing img_size": "datasets: {test: {parameters: {}}}",
		"bad img_size":     "datasets: {test: {parameters: {img_size: [0, 640]}}}",
		"bad codec":        "datasets: {test: {parameters: {img_size: [1, 1]}}}\nvideo: {codec: h264x}",
		"bad anchor":       "datasets: {test: {parameters: {img_size: [1, 1]}}}\noverlay: {anchor: [1]}",
		"bad task":         "task: pose\ndatasets: {test: {parameters: {img_size: [1, 1]}}}",
		"bad yaml":         "datasets: [",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewYAML(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewYAMLMissingFile(t *testing.T) {
	if _, err := NewYAML(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidCodec(t *testing.T) {
	for codec, want := range map[string]bool{"mp4v": true, "avc1": true, "MJPG": true, "h264x": false, "": false} {
		if got := ValidCodec(codec); got != want {
			t.Fatalf("ValidCodec(%q) = %v, want %v", codec, got, want)
		}
	}
}
