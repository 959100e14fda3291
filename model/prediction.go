package model

import "fmt"

// RecordKind identifies which payload of a PredictionRecord is populated.
// It is fixed for a whole run and comes from the dataset descriptor.
type RecordKind string

const (
	KindBoxes     RecordKind = "boxes"
	KindPolylines RecordKind = "polylines"
	KindRegions   RecordKind = "regions"
)

func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case KindBoxes, KindPolylines, KindRegions:
		return RecordKind(s), nil
	case "lanes", "":
		return KindPolylines, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Box struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Score float64 `json:"score"`
	Label int     `json:"label"`
}

type Polyline struct {
	Points []Point `json:"points"`
	Label  int     `json:"label"`
}

type Region struct {
	Polygon []Point `json:"polygon"`
	Score   float64 `json:"score"`
	Label   int     `json:"label"`
}

// PredictionRecord is the prediction for exactly one frame. Only the slice
// matching Kind is populated.
type PredictionRecord struct {
	Kind      RecordKind `json:"kind"`
	Boxes     []Box      `json:"boxes,omitempty"`
	Polylines []Polyline `json:"polylines,omitempty"`
	Regions   []Region   `json:"regions,omitempty"`
}

// Size is the number of drawable items in the record.
func (r PredictionRecord) Size() int {
	switch r.Kind {
	case KindBoxes:
		return len(r.Boxes)
	case KindPolylines:
		return len(r.Polylines)
	case KindRegions:
		return len(r.Regions)
	}
	return 0
}

// PredictionSequence is index-addressed: entry i belongs to frame i.
type PredictionSequence []PredictionRecord
