package pipeline

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
)

type renderResult struct {
	idx   int
	frame FrameData
	err   error
}

// renderOrdered renders frames 0..total-1 on several workers and hands them
// to write strictly in index order from the calling goroutine. At most
// 2*workers frames are in flight. On failure every buffered frame is
// released and the error of the lowest failing index is returned.
func renderOrdered(canxCtx context.Context,
	total, workers int,
	render func(idx int) (FrameData, error),
	write func(frame FrameData) error) error {
	if total == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(canxCtx)
	defer cancel()

	window := 2 * workers
	tokens := make(chan struct{}, window)
	jobs := make(chan int)
	// Tokens bound everything buffered here, so workers never block on send.
	results := make(chan renderResult, window)

	go func() {
		defer close(jobs)
		for i := 0; i < total; i++ {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				frame, err := render(i)
				results <- renderResult{idx: i, frame: frame, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := map[int]FrameData{}
	next := 0
	failIdx := -1
	var failErr error

	fail := func(idx int, err error) {
		if failIdx == -1 || idx < failIdx {
			failIdx = idx
			failErr = err
		}
		cancel()
		for i, f := range pending {
			f.Mat.Close()
			delete(pending, i)
		}
	}

	for res := range results {
		if res.err != nil {
			fail(res.idx, res.err)
			continue
		}
		if failIdx != -1 {
			res.frame.Mat.Close()
			continue
		}
		if canxCtx.Err() != nil {
			res.frame.Mat.Close()
			fail(next, xerrors.Errorf("stopped at frame %d: %v: %w", next, canxCtx.Err(), model.ErrCancelled))
			continue
		}

		pending[res.idx] = res.frame
		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := write(f); err != nil {
				fail(next, err)
				break
			}
			<-tokens
			next++
		}
	}

	if failIdx != -1 {
		return failErr
	}
	if next < total {
		return xerrors.Errorf("stopped at frame %d: %v: %w", next, canxCtx.Err(), model.ErrCancelled)
	}
	return nil
}
