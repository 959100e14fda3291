package mode

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/pipeline"
	"github.com/khaledhikmat/vs-render/service/lgr"
)

// Accepted artifact names inside an experiment folder, in lookup order.
var artifactExts = []string{".cbor", ".msgpack", ".json", ".pkl"}

// Experiment renders experiments/<name> with the fps overlay on. Both the
// predictions and the fps log must exist before anything is rendered.
func Experiment(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	var name, out string
	var fps int

	fs := flag.NewFlagSet("experiment", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&name, "exp_name", "", "experiment folder name (required)")
	fs.StringVar(&out, "out", "output_video.mp4", "output video path")
	fs.IntVar(&fps, "fps", 30, "output frame rate")

	if err := fs.Parse(args); err != nil {
		return model.GenError("mode_experiment", invalidArgs(err), nil, "invalid arguments")
	}
	if name == "" {
		fs.Usage()
		return model.GenError("mode_experiment", invalidArgs(xerrors.New("--exp_name is required")), nil, "invalid arguments")
	}

	dir := filepath.Join(svcs.CfgSvc.GetExperimentsFolder(), name)
	opts := renderOptions{
		predictions:       resolveArtifact(dir, "predictions"),
		cfg:               filepath.Join(dir, "config.yaml"),
		out:               out,
		fps:               fps,
		showFPS:           true,
		fpsData:           resolveArtifact(dir, "fps_data"),
		workers:           1,
		requireRates:      true,
		predictionsRemedy: fmt.Sprintf(predictionsRemedyFmt, name),
		ratesRemedy:       defaultRatesRemedy,
	}

	lgr.Logger.Info(
		"rendering experiment",
		slog.String("experiment", name),
		slog.String("predictions", opts.predictions),
		slog.String("fps_data", opts.fpsData),
	)
	return runRender(canxCtx, svcs, opts)
}

// resolveArtifact returns the first existing dir/base.<ext>, or the first
// candidate when none exists so the error names the preferred file.
func resolveArtifact(dir, base string) string {
	for _, ext := range artifactExts {
		path := filepath.Join(dir, base+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return filepath.Join(dir, base+artifactExts[0])
}

func invalidArgs(err error) error {
	return xerrors.Errorf("%v: %w", err, model.ErrInvalidParameters)
}
