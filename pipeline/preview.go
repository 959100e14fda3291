package pipeline

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// previewSink shows each frame before handing it to the wrapped sink.
type previewSink struct {
	inner   Sink
	show    func(mat gocv.Mat)
	release func()

	closeOnce sync.Once
}

// WithPreview opens a window titled title next to every sink open returns.
// The window is closed together with the sink.
func WithPreview(open SinkOpener, title string) SinkOpener {
	return func(path, codec string, rate int, resolution image.Point) (Sink, error) {
		inner, err := open(path, codec, rate, resolution)
		if err != nil {
			return nil, err
		}

		window := gocv.NewWindow(title)
		show := func(mat gocv.Mat) {
			window.IMShow(mat)
			window.WaitKey(1)
		}
		release := func() {
			window.Close()
		}
		return newPreviewSink(inner, show, release), nil
	}
}

func newPreviewSink(inner Sink, show func(mat gocv.Mat), release func()) *previewSink {
	return &previewSink{inner: inner, show: show, release: release}
}

func (s *previewSink) Write(frame FrameData) error {
	// The wrapped sink releases the Mat, so it is shown first.
	if !frame.Mat.Empty() {
		s.show(frame.Mat)
	}
	return s.inner.Write(frame)
}

func (s *previewSink) Close() error {
	s.closeOnce.Do(s.release)
	return s.inner.Close()
}
