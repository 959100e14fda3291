package pipeline

import (
	"image"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/data"
	"github.com/khaledhikmat/vs-render/service/progress"
)

// FrameData is one rendered frame plus its draw metadata. Whoever holds it
// owns Mat; Sink.Write takes that ownership.
type FrameData struct {
	Mat         gocv.Mat
	Index       int
	Primitives  int
	Overlaid    bool
	OverlayText string

	procTime time.Duration
}

// Annotator renders the base frame for a dataset index with its prediction
// drawn on it. Implementations must allow concurrent calls for different indices.
type Annotator interface {
	// Len is the dataset length, or Unbounded when the dataset has one frame
	// per prediction by construction.
	Len() int
	Annotate(idx int, rec model.PredictionRecord) (FrameData, error)
}

// Unbounded is returned by Annotator.Len for datasets sized by the predictions.
const Unbounded = -1

// Sink accepts frames in arrival order and owns the output container.
type Sink interface {
	Write(frame FrameData) error
	// Close flushes and releases the container. It is idempotent.
	Close() error
}

// Signature of sink constructors
type SinkOpener func(path, codec string, rate int, resolution image.Point) (Sink, error)

type ServicesFactory struct {
	CfgSvc      config.IService
	DataSvc     data.IService
	ProgressSvc progress.IService
	Annotator   Annotator
	OpenSink    SinkOpener
	Tracer      trace.Tracer
}

// Parameters enumerates every option of a render run.
type Parameters struct {
	// RunID labels logs and stats; a fresh one is generated when empty.
	RunID           string
	PredictionsPath string
	RatesPath       string
	OutputPath      string
	// Resolution holds width in X and height in Y.
	Resolution     image.Point
	Rate           int
	Codec          string
	OverlayEnabled bool
	// RequireRates turns a missing timing log into a failure instead of
	// disabling the overlay.
	RequireRates bool
	Anchor       image.Point
	Workers      int

	PredictionsRemedy string
	RatesRemedy       string
}
