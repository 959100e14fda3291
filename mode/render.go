package mode

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/pipeline"
)

// Render draws the predictions at --pred over the dataset described by --cfg.
func Render(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	opts, err := parseRenderFlags(args)
	if err != nil {
		return err
	}
	return runRender(canxCtx, svcs, opts)
}

func parseRenderFlags(args []string) (renderOptions, error) {
	var opts renderOptions

	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.predictions, "pred", "", "predictions artifact (required)")
	fs.StringVar(&opts.cfg, "cfg", "", "dataset config yaml (required)")
	fs.StringVar(&opts.out, "out", "video.mp4", "output video path")
	fs.IntVar(&opts.fps, "fps", 30, "output frame rate")
	fs.BoolVar(&opts.showFPS, "show_fps", false, "overlay the measured fps on each frame")
	fs.StringVar(&opts.fpsData, "fps_data", "fps_data.pkl", "measured fps log")
	fs.StringVar(&opts.legend, "legend", "", "legend text drawn at the bottom left")
	fs.StringVar(&opts.codec, "codec", "", "four character codec (default video.codec from the config, else mp4v)")
	fs.IntVar(&opts.workers, "workers", 1, "frames rendered concurrently")
	fs.StringVar(&opts.progressAddr, "progress_addr", "", "host:port serving websocket progress")
	fs.BoolVar(&opts.view, "view", false, "show each frame in a window while writing")

	if err := fs.Parse(args); err != nil {
		return opts, model.GenError("mode_render", invalidArgs(err), nil, "invalid arguments")
	}
	if opts.predictions == "" || opts.cfg == "" {
		fs.Usage()
		return opts, model.GenError("mode_render", invalidArgs(xerrors.New("--pred and --cfg are required")), nil, "invalid arguments")
	}

	opts.predictionsRemedy = fmt.Sprintf(predictionsRemedyFmt, experimentOf(opts.predictions))
	opts.ratesRemedy = defaultRatesRemedy
	return opts, nil
}

// experimentOf guesses the experiment name from experiments/<name>/predictions.pkl.
func experimentOf(predictions string) string {
	dir := filepath.Base(filepath.Dir(predictions))
	if dir == "." || dir == string(filepath.Separator) {
		return "<exp_name>"
	}
	return dir
}
