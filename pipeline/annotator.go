package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/model"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/lgr"
)

var palette = []color.RGBA{
	{0, 255, 0, 0},
	{255, 0, 0, 0},
	{0, 0, 255, 0},
	{255, 255, 0, 0},
	{255, 0, 255, 0},
	{0, 255, 255, 0},
	{255, 128, 0, 0},
	{128, 0, 255, 0},
}

var legendColor = color.RGBA{255, 255, 255, 0}

type datasetAnnotator struct {
	files      []string
	count      int
	resolution image.Point
	labels     []string
	legend     string
}

// NewDatasetAnnotator draws predictions over the configured frames folder, or
// over blank frames when no folder is configured.
func NewDatasetAnnotator(cfgSvc config.IService, legend string) (Annotator, error) {
	a := &datasetAnnotator{
		count:      cfgSvc.GetFramesCount(),
		resolution: cfgSvc.GetResolution(),
		labels:     cfgSvc.GetLabels(),
		legend:     legend,
	}

	folder := cfgSvc.GetFramesFolder()
	if folder == "" {
		if a.count == 0 {
			a.count = Unbounded
		}
		lgr.Logger.Info(
			"dataset has no frames folder, rendering on blank frames",
			slog.Int("frames", a.count),
		)
		return a, nil
	}

	files, err := filepath.Glob(filepath.Join(folder, cfgSvc.GetFramesPattern()))
	if err != nil {
		return nil, xerrors.Errorf("listing frames in %s: %w", folder, err)
	}
	if len(files) == 0 {
		return nil, xerrors.Errorf("no frames matching %s in %s", cfgSvc.GetFramesPattern(), folder)
	}
	sort.Strings(files)

	a.files = files
	a.count = len(files)

	lgr.Logger.Info(
		"dataset loaded",
		slog.String("folder", folder),
		slog.Int("frames", a.count),
	)

	return a, nil
}

func (a *datasetAnnotator) Len() int {
	return a.count
}

func (a *datasetAnnotator) Annotate(idx int, rec model.PredictionRecord) (FrameData, error) {
	mat, err := a.baseFrame(idx)
	if err != nil {
		return FrameData{}, err
	}

	primitives, err := a.draw(&mat, rec)
	if err != nil {
		mat.Close()
		return FrameData{}, xerrors.Errorf("drawing frame %d: %w", idx, err)
	}

	if a.legend != "" {
		pos := image.Pt(10, a.resolution.Y-10)
		if err := gocv.PutTextWithParams(&mat, a.legend, pos, gocv.FontHersheySimplex, 0.6, legendColor, 1, gocv.LineAA, false); err != nil {
			mat.Close()
			return FrameData{}, xerrors.Errorf("drawing legend on frame %d: %w", idx, err)
		}
	}

	return FrameData{
		Mat:        mat,
		Index:      idx,
		Primitives: primitives,
	}, nil
}

func (a *datasetAnnotator) baseFrame(idx int) (gocv.Mat, error) {
	if a.files == nil {
		if a.count != Unbounded && idx >= a.count {
			return gocv.Mat{}, xerrors.Errorf("frame %d out of range [0, %d)", idx, a.count)
		}
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), a.resolution.Y, a.resolution.X, gocv.MatTypeCV8UC3), nil
	}

	if idx < 0 || idx >= len(a.files) {
		return gocv.Mat{}, xerrors.Errorf("frame %d out of range [0, %d)", idx, len(a.files))
	}

	img := gocv.IMRead(a.files[idx], gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, xerrors.Errorf("cannot decode frame %s", a.files[idx])
	}

	if img.Cols() == a.resolution.X && img.Rows() == a.resolution.Y {
		return img, nil
	}

	// Dataset images are brought to the configured geometry here; the sink
	// never resizes.
	resized := gocv.NewMat()
	err := gocv.Resize(img, &resized, a.resolution, 0, 0, gocv.InterpolationLinear)
	img.Close()
	if err != nil {
		resized.Close()
		return gocv.Mat{}, xerrors.Errorf("resizing frame %s: %w", a.files[idx], err)
	}
	return resized, nil
}

func (a *datasetAnnotator) draw(mat *gocv.Mat, rec model.PredictionRecord) (int, error) {
	switch rec.Kind {
	case model.KindBoxes:
		for _, b := range rec.Boxes {
			c := labelColor(b.Label)
			rect := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
			if err := gocv.Rectangle(mat, rect, c, 2); err != nil {
				return 0, err
			}
			caption := fmt.Sprintf("%s %.2f", a.labelName(b.Label), b.Score)
			if err := gocv.PutText(mat, caption, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
				return 0, err
			}
		}
		return len(rec.Boxes), nil

	case model.KindPolylines:
		for _, l := range rec.Polylines {
			c := labelColor(l.Label)
			for i, p := range l.Points {
				pt := toPixel(p)
				if err := gocv.Circle(mat, pt, 3, c, -1); err != nil {
					return 0, err
				}
				if i == 0 {
					continue
				}
				if err := gocv.Line(mat, toPixel(l.Points[i-1]), pt, c, 3); err != nil {
					return 0, err
				}
			}
		}
		return len(rec.Polylines), nil

	case model.KindRegions:
		for _, r := range rec.Regions {
			if len(r.Polygon) == 0 {
				continue
			}
			c := labelColor(r.Label)
			pts := make([]image.Point, len(r.Polygon))
			for i, p := range r.Polygon {
				pts[i] = toPixel(p)
			}
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
			err := gocv.Polylines(mat, pv, true, c, 2)
			pv.Close()
			if err != nil {
				return 0, err
			}
			caption := fmt.Sprintf("%s %.2f", a.labelName(r.Label), r.Score)
			if err := gocv.PutText(mat, caption, pts[0], gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
				return 0, err
			}
		}
		return len(rec.Regions), nil
	}

	return 0, xerrors.Errorf("unknown record kind %q", rec.Kind)
}

func (a *datasetAnnotator) labelName(label int) string {
	if label >= 0 && label < len(a.labels) {
		return a.labels[label]
	}
	return strconv.Itoa(label)
}

func labelColor(label int) color.RGBA {
	if label < 0 {
		label = -label
	}
	return palette[label%len(palette)]
}

func toPixel(p model.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
