package mode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/pipeline"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/data"
	"github.com/khaledhikmat/vs-render/service/lgr"
	"github.com/khaledhikmat/vs-render/service/progress"
)

// Processor runs one command line mode with its remaining arguments.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

// renderOptions are the resolved inputs shared by the render and experiment modes.
type renderOptions struct {
	predictions  string
	cfg          string
	out          string
	fps          int
	showFPS      bool
	fpsData      string
	legend       string
	codec        string
	workers      int
	progressAddr string
	requireRates bool
	view         bool

	predictionsRemedy string
	ratesRemedy       string
}

const (
	predictionsRemedyFmt = "Run inference with:\n  python main.py test --exp_name %s --save_predictions"
	defaultRatesRemedy   = "Run inference (patched eval) to generate fps_data.pkl"
)

// stderr is swapped by tests.
var stderr io.Writer = os.Stderr

func runRender(canxCtx context.Context, svcs pipeline.ServicesFactory, opts renderOptions) error {
	if svcs.DataSvc == nil {
		svcs.DataSvc = data.NewFiles()
	}

	// Missing inputs are reported before the config or the dataset is touched.
	if err := checkArtifacts(svcs.DataSvc, opts); err != nil {
		reportArtifact(err)
		return model.GenError("mode_render", err, map[string]interface{}{"pred": opts.predictions}, "missing input")
	}

	cfgSvc, err := config.NewYAML(opts.cfg)
	if err != nil {
		return model.GenError("mode_render", err, map[string]interface{}{"cfg": opts.cfg}, "error loading config")
	}
	svcs.CfgSvc = cfgSvc

	if svcs.Annotator == nil {
		svcs.Annotator, err = pipeline.NewDatasetAnnotator(cfgSvc, opts.legend)
		if err != nil {
			return model.GenError("mode_render", err, map[string]interface{}{"cfg": opts.cfg}, "error loading dataset")
		}
	}

	codec := opts.codec
	if codec == "" {
		codec = cfgSvc.GetCodec()
	}

	params := pipeline.Parameters{
		RunID:             uuid.NewString(),
		PredictionsPath:   opts.predictions,
		RatesPath:         opts.fpsData,
		OutputPath:        opts.out,
		Resolution:        cfgSvc.GetResolution(),
		Rate:              opts.fps,
		Codec:             codec,
		OverlayEnabled:    opts.showFPS,
		RequireRates:      opts.requireRates,
		Anchor:            cfgSvc.GetOverlayAnchor(),
		Workers:           opts.workers,
		PredictionsRemedy: opts.predictionsRemedy,
		RatesRemedy:       opts.ratesRemedy,
	}

	progressSvcs := []progress.IService{progress.NewTerminal(stderr)}
	if opts.progressAddr != "" {
		wsSvc, err := progress.NewWebsocket(canxCtx, opts.progressAddr, params.RunID)
		if err != nil {
			return model.GenError("mode_render", err, map[string]interface{}{"addr": opts.progressAddr}, "error starting progress server")
		}
		progressSvcs = append(progressSvcs, wsSvc)
	}
	svcs.ProgressSvc = progress.NewMulti(progressSvcs...)

	if opts.view {
		open := svcs.OpenSink
		if open == nil {
			open = pipeline.OpenMP4Sink
		}
		svcs.OpenSink = pipeline.WithPreview(open, "vs-render")
	}

	stats, err := pipeline.Render(canxCtx, svcs, params)
	if err != nil {
		reportArtifact(err)
		return err
	}

	lgr.Logger.Info(
		"video written",
		slog.String("output", stats.Output),
		slog.Int("frames", stats.Frames),
		slog.Int("overlaid", stats.Overlaid),
	)
	return nil
}

func checkArtifacts(dataSvc data.IService, opts renderOptions) error {
	if !dataSvc.ArtifactExists(opts.predictions) {
		return &model.ArtifactError{Artifact: "predictions", Path: opts.predictions, Remedy: opts.predictionsRemedy}
	}
	if opts.showFPS && opts.requireRates && !dataSvc.ArtifactExists(opts.fpsData) {
		return &model.ArtifactError{Artifact: "fps", Path: opts.fpsData, Remedy: opts.ratesRemedy}
	}
	return nil
}

// reportArtifact prints the regeneration command for a missing input.
func reportArtifact(err error) {
	var artifactErr *model.ArtifactError
	if !errors.As(err, &artifactErr) {
		return
	}
	lgr.Notice(stderr, "ERROR: %s", artifactErr.Error())
	if artifactErr.Remedy != "" {
		fmt.Fprintf(stderr, "%s\n", artifactErr.Remedy)
	}
}
