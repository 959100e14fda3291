package pipeline

import (
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/lgr"
)

type mp4Sink struct {
	writer     *gocv.VideoWriter
	path       string
	resolution image.Point
	frames     int

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// OpenMP4Sink opens a color video container at path. Frames written to it
// must match resolution exactly; they are never resized.
func OpenMP4Sink(path, codec string, rate int, resolution image.Point) (Sink, error) {
	if !config.ValidCodec(codec) {
		return nil, xerrors.Errorf("codec %q is not a four character code: %w", codec, model.ErrEncodeFailure)
	}

	lgr.Logger.Info(
		"opening video writer",
		slog.String("path", path),
		slog.String("codec", codec),
		slog.Int("fps", rate),
		slog.Int("width", resolution.X),
		slog.Int("height", resolution.Y),
	)

	writer, err := gocv.VideoWriterFile(path, codec, float64(rate), resolution.X, resolution.Y, true)
	if err != nil {
		return nil, xerrors.Errorf("creating video writer %s: %v: %w", path, err, model.ErrEncodeFailure)
	}

	if !writer.IsOpened() {
		writer.Close()
		return nil, xerrors.Errorf("video writer %s is not opened: %w", path, model.ErrEncodeFailure)
	}

	return &mp4Sink{
		writer:     writer,
		path:       path,
		resolution: resolution,
	}, nil
}

func (s *mp4Sink) Write(frame FrameData) error {
	defer frame.Mat.Close()

	if err := checkFrame(frame, s.resolution); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return xerrors.Errorf("write to closed video %s: %w", s.path, model.ErrEncodeFailure)
	}

	if err := s.writer.Write(frame.Mat); err != nil {
		lgr.Logger.Error(
			"error writing video frame",
			slog.String("path", s.path),
			slog.Int("frame", frame.Index),
			slog.Any("error", err),
		)
		return xerrors.Errorf("writing frame %d to %s: %v: %w", frame.Index, s.path, err, model.ErrEncodeFailure)
	}

	s.frames++
	return nil
}

func (s *mp4Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.closed = true
		if err := s.writer.Close(); err != nil {
			s.closeErr = xerrors.Errorf("closing video %s: %v: %w", s.path, err, model.ErrEncodeFailure)
		}

		lgr.Logger.Info(
			"video writer released",
			slog.String("path", s.path),
			slog.Int("frames", s.frames),
		)
	})
	return s.closeErr
}

// checkFrame rejects frames whose size or channel layout differs from the
// container's. The container is always 3 channel BGR.
func checkFrame(frame FrameData, resolution image.Point) error {
	if frame.Mat.Empty() {
		return xerrors.Errorf("frame %d is empty: %w", frame.Index, model.ErrShapeMismatch)
	}

	if frame.Mat.Cols() != resolution.X || frame.Mat.Rows() != resolution.Y || frame.Mat.Channels() != 3 {
		lgr.Logger.Error(
			"frame dimensions do not match video dimensions",
			slog.Int("frame", frame.Index),
			slog.Int("frame_cols", frame.Mat.Cols()),
			slog.Int("frame_rows", frame.Mat.Rows()),
			slog.Int("frame_channels", frame.Mat.Channels()),
			slog.Int("video_cols", resolution.X),
			slog.Int("video_rows", resolution.Y),
		)
		return xerrors.Errorf("frame %d is %dx%dx%d, video is %dx%dx3: %w",
			frame.Index, frame.Mat.Cols(), frame.Mat.Rows(), frame.Mat.Channels(),
			resolution.X, resolution.Y, model.ErrShapeMismatch)
	}

	return nil
}
