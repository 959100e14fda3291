package mode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/pipeline"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/data"
)

type experimentsConfig struct {
	config.IService
	folder string
}

func (c experimentsConfig) GetExperimentsFolder() string {
	return c.folder
}

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = prev })
	return &buf
}

func TestParseRenderFlagsDefaults(t *testing.T) {
	captureStderr(t)

	opts, err := parseRenderFlags([]string{"--pred", "p.cbor", "--cfg", "c.yaml"})
	if err != nil {
		t.Fatalf("parseRenderFlags error: %v", err)
	}
	if opts.out != "video.mp4" || opts.fps != 30 || opts.fpsData != "fps_data.pkl" || opts.showFPS || opts.workers != 1 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}

	opts, err = parseRenderFlags([]string{"--pred", "p", "--cfg", "c", "--show_fps", "--fps", "25", "--codec", "MJPG", "--workers", "4"})
	if err != nil {
		t.Fatalf("parseRenderFlags error: %v", err)
	}
	if !opts.showFPS || opts.fps != 25 || opts.codec != "MJPG" || opts.workers != 4 || opts.view {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestParseRenderFlagsRemedies(t *testing.T) {
	captureStderr(t)

	opts, err := parseRenderFlags([]string{"--pred", filepath.Join("experiments", "exp7", "predictions.pkl"), "--cfg", "c.yaml", "--view"})
	if err != nil {
		t.Fatalf("parseRenderFlags error: %v", err)
	}
	if !opts.view {
		t.Fatalf("--view not parsed")
	}
	if !strings.Contains(opts.predictionsRemedy, "python main.py test --exp_name exp7 --save_predictions") {
		t.Fatalf("unexpected predictions remedy: %q", opts.predictionsRemedy)
	}
	if opts.ratesRemedy == "" {
		t.Fatalf("missing fps remedy")
	}

	opts, err = parseRenderFlags([]string{"--pred", "predictions.pkl", "--cfg", "c.yaml"})
	if err != nil {
		t.Fatalf("parseRenderFlags error: %v", err)
	}
	if !strings.Contains(opts.predictionsRemedy, "--exp_name <exp_name> --save_predictions") {
		t.Fatalf("unexpected predictions remedy: %q", opts.predictionsRemedy)
	}
}

func TestRenderMissingPredictionsFailsFast(t *testing.T) {
	dir := t.TempDir()
	out := captureStderr(t)

	// The config does not exist either; the predictions are reported first.
	err := Render(context.Background(), pipeline.ServicesFactory{}, []string{
		"--pred", filepath.Join(dir, "predictions.pkl"),
		"--cfg", filepath.Join(dir, "missing.yaml"),
		"--out", filepath.Join(dir, "video.mp4"),
	})
	var artifactErr *model.ArtifactError
	if !errors.As(err, &artifactErr) || artifactErr.Artifact != "predictions" {
		t.Fatalf("expected missing predictions, got %v", err)
	}
	if !strings.Contains(out.String(), "--save_predictions") {
		t.Fatalf("remedy not printed: %q", out.String())
	}
	if _, statErr := os.Stat(filepath.Join(dir, "video.mp4")); statErr == nil {
		t.Fatalf("no video may be produced without predictions")
	}
}

func TestRenderMissingRequiredRatesFailsFast(t *testing.T) {
	dir := t.TempDir()
	pred := filepath.Join(dir, "predictions.json")
	if err := os.WriteFile(pred, []byte("[]"), 0644); err != nil {
		t.Fatalf("write predictions: %v", err)
	}
	out := captureStderr(t)

	err := runRender(context.Background(), pipeline.ServicesFactory{DataSvc: data.NewFiles()}, renderOptions{
		predictions:  pred,
		cfg:          filepath.Join(dir, "missing.yaml"),
		fpsData:      filepath.Join(dir, "fps_data.pkl"),
		showFPS:      true,
		requireRates: true,
		ratesRemedy:  defaultRatesRemedy,
	})
	var artifactErr *model.ArtifactError
	if !errors.As(err, &artifactErr) || artifactErr.Artifact != "fps" {
		t.Fatalf("expected missing fps log, got %v", err)
	}
	if !strings.Contains(out.String(), defaultRatesRemedy) {
		t.Fatalf("remedy not printed: %q", out.String())
	}
}

func TestParseRenderFlagsRequired(t *testing.T) {
	captureStderr(t)

	for _, args := range [][]string{
		{"--cfg", "c.yaml"},
		{"--pred", "p.cbor"},
		{"--pred", "p.cbor", "--cfg", "c.yaml", "--fps", "fast"},
	} {
		if _, err := parseRenderFlags(args); !errors.Is(err, model.ErrInvalidParameters) {
			t.Fatalf("args %v: expected invalid parameters, got %v", args, err)
		}
	}
}

func TestExperimentMissingArtifacts(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "exp1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	svcs := pipeline.ServicesFactory{
		CfgSvc:  experimentsConfig{IService: config.NewHardCoded(), folder: root},
		DataSvc: data.NewFiles(),
	}

	out := captureStderr(t)
	err := Experiment(context.Background(), svcs, []string{"--exp_name", "exp1"})
	var artifactErr *model.ArtifactError
	if !errors.As(err, &artifactErr) || artifactErr.Artifact != "predictions" {
		t.Fatalf("expected missing predictions, got %v", err)
	}
	if !strings.Contains(out.String(), "python main.py test --exp_name exp1 --save_predictions") {
		t.Fatalf("remedy not printed: %q", out.String())
	}

	if err := os.WriteFile(filepath.Join(dir, "predictions.pkl"), []byte("[]"), 0644); err != nil {
		t.Fatalf("write predictions: %v", err)
	}
	out.Reset()
	err = Experiment(context.Background(), svcs, []string{"--exp_name", "exp1"})
	if !errors.As(err, &artifactErr) || artifactErr.Artifact != "fps" {
		t.Fatalf("expected missing fps log, got %v", err)
	}
	if !strings.Contains(out.String(), "fps_data") {
		t.Fatalf("remedy not printed: %q", out.String())
	}
	if _, statErr := os.Stat("output_video.mp4"); statErr == nil {
		t.Fatalf("no video may be produced for an incomplete experiment")
	}
}

func TestExperimentRequiresName(t *testing.T) {
	captureStderr(t)
	svcs := pipeline.ServicesFactory{CfgSvc: config.NewHardCoded(), DataSvc: data.NewFiles()}

	if err := Experiment(context.Background(), svcs, nil); !errors.Is(err, model.ErrInvalidParameters) {
		t.Fatalf("expected invalid parameters, got %v", err)
	}
}

func TestResolveArtifact(t *testing.T) {
	dir := t.TempDir()
	if got := resolveArtifact(dir, "predictions"); got != filepath.Join(dir, "predictions.cbor") {
		t.Fatalf("unexpected default %s", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "predictions.pkl"), []byte("[]"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := resolveArtifact(dir, "predictions"); got != filepath.Join(dir, "predictions.pkl") {
		t.Fatalf("expected the existing pkl, got %s", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "predictions.msgpack"), []byte{0x90}, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := resolveArtifact(dir, "predictions"); got != filepath.Join(dir, "predictions.msgpack") {
		t.Fatalf("expected msgpack to win over pkl, got %s", got)
	}
}
