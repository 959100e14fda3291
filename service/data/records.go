package data

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/khaledhikmat/vs-render/model"
)

const boxStride = 6 // x1, y1, x2, y2, score, label

// toRecord resolves one decoded prediction entry to the configured kind.
func toRecord(kind model.RecordKind, value any) (model.PredictionRecord, error) {
	rec := model.PredictionRecord{Kind: kind}

	if tag, ok := value.(cbor.Tag); ok {
		nested, err := toSequence(tag)
		if err != nil {
			return rec, err
		}
		value = nested
	}

	if value == nil {
		return rec, nil
	}

	if m, ok := stringKeys(value); ok {
		return recordFromMap(kind, m)
	}

	list, ok := value.([]any)
	if !ok {
		return rec, fmt.Errorf("unsupported record type %T", value)
	}

	// A flat numeric list is a single row.
	if _, isRow := numericRow(list); isRow && len(list) > 0 {
		list = []any{list}
	}

	for i, item := range list {
		if err := appendItem(&rec, item); err != nil {
			return rec, fmt.Errorf("item %d: %w", i, err)
		}
	}

	return rec, nil
}

func appendItem(rec *model.PredictionRecord, item any) error {
	if m, ok := stringKeys(item); ok {
		return appendItemFromMap(rec, m)
	}

	switch rec.Kind {
	case model.KindBoxes:
		row, ok := numericList(item)
		if !ok {
			return fmt.Errorf("box row must be numeric, got %T", item)
		}
		boxes, err := boxesFromRow(row)
		if err != nil {
			return err
		}
		rec.Boxes = append(rec.Boxes, boxes...)

	case model.KindPolylines:
		points, err := pointsOf(item)
		if err != nil {
			return err
		}
		rec.Polylines = append(rec.Polylines, model.Polyline{Points: points})

	case model.KindRegions:
		points, err := pointsOf(item)
		if err != nil {
			return err
		}
		rec.Regions = append(rec.Regions, model.Region{Polygon: points})

	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}

	return nil
}

func appendItemFromMap(rec *model.PredictionRecord, m map[string]any) error {
	label := intField(m, "label")
	score := floatField(m, "score")

	switch rec.Kind {
	case model.KindBoxes:
		row, ok := numericList(firstOf(m, "box", "bbox"))
		if !ok || len(row) < 4 {
			return errors.New("box entry needs a box of 4 values")
		}
		rec.Boxes = append(rec.Boxes, model.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3], Score: score, Label: label})

	case model.KindPolylines:
		points, err := pointsOf(firstOf(m, "points", "lane"))
		if err != nil {
			return err
		}
		rec.Polylines = append(rec.Polylines, model.Polyline{Points: points, Label: label})

	case model.KindRegions:
		points, err := pointsOf(firstOf(m, "polygon", "points"))
		if err != nil {
			return err
		}
		rec.Regions = append(rec.Regions, model.Region{Polygon: points, Score: score, Label: label})
	}

	return nil
}

// recordFromMap handles the columnar form, e.g. {boxes: [...], scores: [...], labels: [...]}.
func recordFromMap(kind model.RecordKind, m map[string]any) (model.PredictionRecord, error) {
	rec := model.PredictionRecord{Kind: kind}

	var key string
	switch kind {
	case model.KindBoxes:
		key = "boxes"
	case model.KindPolylines:
		key = "lanes"
		if _, ok := m[key]; !ok {
			key = "polylines"
		}
	case model.KindRegions:
		key = "regions"
		if _, ok := m[key]; !ok {
			key = "polygons"
		}
	}

	raw, ok := m[key]
	if !ok || raw == nil {
		return rec, nil
	}
	items, err := toSequence(raw)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", key, err)
	}

	labels, _ := numericList(m["labels"])
	scores, _ := numericList(m["scores"])

	for i, item := range items {
		before := rec.Size()
		if err := appendItem(&rec, item); err != nil {
			return rec, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		if rec.Size() == before {
			continue
		}
		applyColumns(&rec, i, labels, scores)
	}

	return rec, nil
}

func applyColumns(rec *model.PredictionRecord, i int, labels, scores []float64) {
	n := rec.Size() - 1
	switch rec.Kind {
	case model.KindBoxes:
		if i < len(labels) {
			rec.Boxes[n].Label = int(labels[i])
		}
		if i < len(scores) {
			rec.Boxes[n].Score = scores[i]
		}
	case model.KindPolylines:
		if i < len(labels) {
			rec.Polylines[n].Label = int(labels[i])
		}
	case model.KindRegions:
		if i < len(labels) {
			rec.Regions[n].Label = int(labels[i])
		}
		if i < len(scores) {
			rec.Regions[n].Score = scores[i]
		}
	}
}

func boxesFromRow(row []float64) ([]model.Box, error) {
	switch {
	case len(row) == 4:
		return []model.Box{{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}}, nil
	case len(row) == 5:
		return []model.Box{{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3], Score: row[4]}}, nil
	case len(row)%boxStride == 0:
		boxes := make([]model.Box, 0, len(row)/boxStride)
		for i := 0; i < len(row); i += boxStride {
			boxes = append(boxes, model.Box{
				X1:    row[i],
				Y1:    row[i+1],
				X2:    row[i+2],
				Y2:    row[i+3],
				Score: row[i+4],
				Label: int(row[i+5]),
			})
		}
		return boxes, nil
	}
	return nil, fmt.Errorf("box row of %d values is not 4, 5 or a multiple of %d", len(row), boxStride)
}

// pointsOf accepts flat x,y pairs or a list of [x, y] points.
func pointsOf(value any) ([]model.Point, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("points must be a list, got %T", value)
	}

	if row, isRow := numericRow(list); isRow {
		if len(row)%2 != 0 {
			return nil, fmt.Errorf("odd number of coordinates: %d", len(row))
		}
		points := make([]model.Point, len(row)/2)
		for i := range points {
			points[i] = model.Point{X: row[2*i], Y: row[2*i+1]}
		}
		return points, nil
	}

	points := make([]model.Point, len(list))
	for i, p := range list {
		xy, ok := numericList(p)
		if !ok || len(xy) < 2 {
			return nil, fmt.Errorf("point %d must be [x, y]", i)
		}
		points[i] = model.Point{X: xy[0], Y: xy[1]}
	}
	return points, nil
}

func numericRow(list []any) ([]float64, bool) {
	row := make([]float64, len(list))
	for i, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		row[i] = f
	}
	return row, true
}

func numericList(value any) ([]float64, bool) {
	switch v := value.(type) {
	case []any:
		return numericRow(v)
	case cbor.Tag:
		flat, err := decodeTypedArray(v)
		return flat, err == nil
	}
	return nil, false
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func intField(m map[string]any, key string) int {
	f, _ := toFloat(m[key])
	return int(f)
}

func floatField(m map[string]any, key string) float64 {
	f, _ := toFloat(m[key])
	return f
}
