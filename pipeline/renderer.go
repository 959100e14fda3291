package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/data"
	"github.com/khaledhikmat/vs-render/service/lgr"
	"github.com/khaledhikmat/vs-render/service/progress"
)

const renderProc = "pipeline_render"

type renderer struct {
	svcs   ServicesFactory
	params Parameters
	runID  string
	logger *slog.Logger

	predictions model.PredictionSequence
	rates       model.RateSequence
	overlay     bool
	sink        Sink

	stats     model.RenderStats
	shortOnce bool
	procTime  time.Duration
}

// Render turns the prediction artifact into an annotated video. No frame is
// produced unless every INIT check passes, and once the sink is open it is
// closed exactly once on every exit path.
func Render(canxCtx context.Context, svcs ServicesFactory, params Parameters) (stats model.RenderStats, err error) {
	svcs = withDefaults(svcs)

	r := &renderer{
		svcs:   svcs,
		params: params,
		runID:  params.RunID,
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = lgr.Logger.With(slog.String("runID", r.runID))

	var beginTime = time.Now()
	r.stats = model.RenderStats{
		RunID:  r.runID,
		Output: params.OutputPath,
		State:  model.StateInit,
	}

	ctx, span := svcs.Tracer.Start(canxCtx, "render", trace.WithAttributes(
		attribute.String("run.id", r.runID),
		attribute.String("render.predictions", params.PredictionsPath),
		attribute.String("render.output", params.OutputPath),
	))
	defer span.End()

	defer func() {
		uptime := time.Since(beginTime)
		r.stats.Uptime = int64(uptime.Seconds())
		if uptime > 0 {
			r.stats.FPS = int(float64(r.stats.Frames) / uptime.Seconds())
		}
		if r.stats.Frames > 0 {
			r.stats.AvgProcTime = r.procTime.Seconds() / float64(r.stats.Frames)
		}
		r.stats.Timestamp = time.Now().Unix()

		if err != nil {
			r.stats.State = model.StateFailed
			r.stats.Errors++
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			r.stats.State = model.StateDone
		}
		span.SetAttributes(
			attribute.String("render.state", string(r.stats.State)),
			attribute.Int("render.frames", r.stats.Frames),
		)

		r.svcs.ProgressSvc.Finish()

		r.logger.Info(
			"render finished",
			slog.String("state", string(r.stats.State)),
			slog.String("output", r.stats.Output),
			slog.Int("frames", r.stats.Frames),
			slog.Int("overlaid", r.stats.Overlaid),
			slog.Int64("uptime", r.stats.Uptime),
			slog.Float64("avgProcTime", r.stats.AvgProcTime),
		)
		stats = r.stats
	}()

	if err = r.setup(ctx); err != nil {
		return r.stats, err
	}

	defer func() {
		closeErr := r.sink.Close()
		if closeErr == nil {
			return
		}
		r.logger.Error("error closing video", slog.Any("error", closeErr))
		// A traversal error takes precedence; a close failure alone still
		// leaves a truncated container.
		if err == nil {
			err = model.GenError(renderProc, closeErr, map[string]interface{}{"output": r.params.OutputPath}, "error closing video")
		}
	}()

	r.stats.State = model.StateRunning
	r.logger.Info(
		"render running",
		slog.Int("frames", len(r.predictions)),
		slog.Bool("overlay", r.overlay),
		slog.Int("workers", r.params.Workers),
	)

	err = r.traverse(ctx)
	return r.stats, err
}

func withDefaults(svcs ServicesFactory) ServicesFactory {
	if svcs.CfgSvc == nil {
		svcs.CfgSvc = config.NewHardCoded()
	}
	if svcs.DataSvc == nil {
		svcs.DataSvc = data.NewFiles()
	}
	if svcs.ProgressSvc == nil {
		svcs.ProgressSvc = progress.NewNoop()
	}
	if svcs.OpenSink == nil {
		svcs.OpenSink = OpenMP4Sink
	}
	if svcs.Tracer == nil {
		svcs.Tracer = noop.NewTracerProvider().Tracer("vs-render")
	}
	return svcs
}

func (r *renderer) setup(ctx context.Context) (err error) {
	_, span := r.svcs.Tracer.Start(ctx, "init")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	misc := map[string]interface{}{
		"predictions": r.params.PredictionsPath,
		"rates":       r.params.RatesPath,
		"output":      r.params.OutputPath,
	}

	if err := validateParameters(r.params); err != nil {
		return model.GenError(renderProc, err, misc, "invalid parameters")
	}

	if !r.svcs.DataSvc.ArtifactExists(r.params.PredictionsPath) {
		return model.GenError(renderProc, &model.ArtifactError{
			Artifact: "predictions",
			Path:     r.params.PredictionsPath,
			Remedy:   r.params.PredictionsRemedy,
		}, misc, "predictions not found")
	}

	r.overlay = r.params.OverlayEnabled
	r.rates = model.AbsentRates()
	if r.overlay && !r.svcs.DataSvc.ArtifactExists(r.params.RatesPath) {
		if r.params.RequireRates {
			return model.GenError(renderProc, &model.ArtifactError{
				Artifact: "fps",
				Path:     r.params.RatesPath,
				Remedy:   r.params.RatesRemedy,
			}, misc, "fps log not found")
		}
		r.logger.Warn(
			"fps file missing, disabling overlay",
			slog.String("path", r.params.RatesPath),
		)
		r.overlay = false
	}

	r.predictions, err = r.svcs.DataSvc.RetrievePredictions(r.params.PredictionsPath, r.svcs.CfgSvc.GetTask())
	if err != nil {
		return model.GenError(renderProc, err, misc, "error loading predictions")
	}
	r.stats.Predictions = len(r.predictions)
	r.logger.Info(
		"predictions loaded",
		slog.String("path", r.params.PredictionsPath),
		slog.String("kind", string(r.svcs.CfgSvc.GetTask())),
		slog.Int("records", len(r.predictions)),
	)

	if r.overlay {
		r.rates, err = r.svcs.DataSvc.RetrieveRates(r.params.RatesPath)
		if err != nil {
			return model.GenError(renderProc, err, misc, "error loading fps log")
		}
		r.stats.Rates = r.rates.Len()
		r.logger.Info(
			"fps log loaded",
			slog.String("path", r.params.RatesPath),
			slog.Int("samples", r.rates.Len()),
			slog.String("avg", formatAvg(r.rates.Mean())),
		)
	}

	if r.svcs.Annotator == nil {
		r.svcs.Annotator, err = NewDatasetAnnotator(r.svcs.CfgSvc, "")
		if err != nil {
			return model.GenError(renderProc, err, misc, "error loading dataset")
		}
	}

	if n := r.svcs.Annotator.Len(); n != Unbounded && n != len(r.predictions) {
		return model.GenError(renderProc,
			xerrors.Errorf("dataset has %d frames, predictions have %d: %w", n, len(r.predictions), model.ErrLengthMismatch),
			misc, "dataset does not match predictions")
	}

	r.sink, err = r.svcs.OpenSink(r.params.OutputPath, r.params.Codec, r.params.Rate, r.params.Resolution)
	if err != nil {
		if !errors.Is(err, model.ErrEncodeFailure) {
			err = xerrors.Errorf("%v: %w", err, model.ErrEncodeFailure)
		}
		return model.GenError(renderProc, err, misc, "error opening video")
	}

	return nil
}

func validateParameters(params Parameters) error {
	switch {
	case params.Rate <= 0:
		return xerrors.Errorf("fps must be positive, got %d: %w", params.Rate, model.ErrInvalidParameters)
	case params.Resolution.X <= 0 || params.Resolution.Y <= 0:
		return xerrors.Errorf("resolution must be positive, got %dx%d: %w", params.Resolution.X, params.Resolution.Y, model.ErrInvalidParameters)
	case !config.ValidCodec(params.Codec):
		return xerrors.Errorf("codec %q is not a four character code: %w", params.Codec, model.ErrInvalidParameters)
	case params.Workers < 1:
		return xerrors.Errorf("workers must be at least 1, got %d: %w", params.Workers, model.ErrInvalidParameters)
	case params.PredictionsPath == "" || params.OutputPath == "":
		return xerrors.Errorf("predictions and output paths are required: %w", model.ErrInvalidParameters)
	}
	return nil
}

func (r *renderer) traverse(ctx context.Context) (err error) {
	ctx, span := r.svcs.Tracer.Start(ctx, "traverse", trace.WithAttributes(
		attribute.Int("render.total", len(r.predictions)),
		attribute.Int("render.workers", r.params.Workers),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if r.params.Workers > 1 {
		err = renderOrdered(ctx, len(r.predictions), r.params.Workers, r.renderFrame, r.write)
	} else {
		err = r.sequential(ctx)
	}
	if err != nil {
		return model.GenError(renderProc, err, map[string]interface{}{
			"output": r.params.OutputPath,
			"frames": r.stats.Frames,
		}, "error rendering video")
	}
	return nil
}

func (r *renderer) sequential(ctx context.Context) error {
	for i := range r.predictions {
		select {
		case <-ctx.Done():
			return xerrors.Errorf("stopped at frame %d: %v: %w", i, ctx.Err(), model.ErrCancelled)
		default:
		}

		frame, err := r.renderFrame(i)
		if err != nil {
			return err
		}
		if err := r.write(frame); err != nil {
			return err
		}
	}
	return nil
}

// renderFrame annotates frame i and applies the rate overlay when a sample
// aligns with it. It may run concurrently for different indices.
func (r *renderer) renderFrame(i int) (FrameData, error) {
	start := time.Now()

	frame, err := r.svcs.Annotator.Annotate(i, r.predictions[i])
	if err != nil {
		return FrameData{}, xerrors.Errorf("annotating frame %d: %v: %w", i, err, model.ErrAnnotation)
	}
	frame.Index = i

	if rate, ok := r.rates.At(i); r.overlay && ok {
		if err := DrawRate(&frame.Mat, rate, r.params.Anchor); err != nil {
			frame.Mat.Close()
			return FrameData{}, xerrors.Errorf("overlay on frame %d: %v: %w", i, err, model.ErrAnnotation)
		}
		frame.Overlaid = true
		frame.OverlayText = FormatRate(rate)
	}

	frame.procTime = time.Since(start)
	return frame, nil
}

// write is only called by the goroutine that owns the sink, in index order.
func (r *renderer) write(frame FrameData) error {
	if r.overlay && !r.shortOnce && frame.Index == r.rates.Len() {
		r.shortOnce = true
		r.logger.Info(
			"fps log shorter than predictions, overlay stops",
			slog.Int("frame", frame.Index),
			slog.Int("samples", r.rates.Len()),
		)
	}

	overlaid := frame.Overlaid
	procTime := frame.procTime
	if err := r.sink.Write(frame); err != nil {
		return err
	}

	r.stats.Frames++
	if overlaid {
		r.stats.Overlaid++
	}
	r.procTime += procTime
	r.svcs.ProgressSvc.Report(r.stats.Frames, len(r.predictions))
	return nil
}

func formatAvg(avg float64) string {
	return fmt.Sprintf("%.2f", avg)
}
