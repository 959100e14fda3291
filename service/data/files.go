package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/khaledhikmat/vs-render/model"
)

type encoding string

const (
	encJSON    encoding = "json"
	encCBOR    encoding = "cbor"
	encMsgpack encoding = "msgpack"
	encPickle  encoding = "pickle"
)

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type filesService struct {
}

func NewFiles() IService {
	return &filesService{}
}

func (svc *filesService) ArtifactExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func (svc *filesService) RetrievePredictions(path string, kind model.RecordKind) (model.PredictionSequence, error) {
	value, err := decodeArtifact(path)
	if err != nil {
		return nil, err
	}

	items, err := toSequence(value)
	if err != nil {
		return nil, fmt.Errorf("predictions %s: %w", path, err)
	}

	predictions := make(model.PredictionSequence, len(items))
	for i, item := range items {
		rec, err := toRecord(kind, item)
		if err != nil {
			return nil, fmt.Errorf("predictions %s: record %d: %w", path, i, err)
		}
		predictions[i] = rec
	}

	return predictions, nil
}

func (svc *filesService) RetrieveRates(path string) (model.RateSequence, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return model.AbsentRates(), nil
	}

	value, err := decodeArtifact(path)
	if err != nil {
		return model.AbsentRates(), err
	}

	if m, ok := stringKeys(value); ok {
		v, found := m["fps"]
		if !found {
			return model.AbsentRates(), fmt.Errorf("fps data %s: map has no fps key", path)
		}
		value = v
	}

	if tag, ok := value.(cbor.Tag); ok && tag.Number != tagMultiDimArray {
		flat, err := decodeTypedArray(tag)
		if err != nil {
			return model.AbsentRates(), fmt.Errorf("fps data %s: %w", path, err)
		}
		return validateRates(path, flat)
	}

	items, err := toSequence(value)
	if err != nil {
		return model.AbsentRates(), fmt.Errorf("fps data %s: %w", path, err)
	}

	samples := make([]float64, 0, len(items))
	if err := flatten(items, &samples); err != nil {
		return model.AbsentRates(), fmt.Errorf("fps data %s: %w", path, err)
	}

	return validateRates(path, samples)
}

func validateRates(path string, samples []float64) (model.RateSequence, error) {
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return model.AbsentRates(), fmt.Errorf("fps data %s: invalid sample %v at %d", path, s, i)
		}
	}
	return model.NewRateSequence(samples), nil
}

func flatten(items []any, out *[]float64) error {
	for _, item := range items {
		if f, ok := toFloat(item); ok {
			*out = append(*out, f)
			continue
		}
		nested, ok := item.([]any)
		if !ok {
			return fmt.Errorf("non numeric sample %T", item)
		}
		if err := flatten(nested, out); err != nil {
			return err
		}
	}
	return nil
}

// decodeArtifact reads path and decodes it as JSON, CBOR, MessagePack or
// pickle. The extension decides when it names one of the first three;
// otherwise the content is sniffed, pickle first for .pkl names and for
// content opening with the protocol marker.
func decodeArtifact(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	if enc, ok := encodingByExt(path); ok {
		v, err := decodeAs(enc, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s as %s: %w", path, enc, err)
		}
		return v, nil
	}

	candidates := []encoding{encCBOR, encMsgpack}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		candidates = append([]encoding{encJSON}, candidates...)
	}
	pickled := strings.EqualFold(filepath.Ext(path), ".pkl") || (len(data) > 0 && data[0] == pickleProtoMarker)
	if pickled {
		candidates = append([]encoding{encPickle}, candidates...)
	}

	var pickleErr error
	for _, enc := range candidates {
		v, err := decodeAs(enc, data)
		if err == nil {
			return v, nil
		}
		if enc == encPickle {
			pickleErr = err
		}
	}

	if pickleErr != nil && len(data) > 0 && data[0] == pickleProtoMarker {
		return nil, fmt.Errorf("failed to decode %s as pickle: %w", path, pickleErr)
	}
	return nil, fmt.Errorf("unsupported artifact encoding: %s (expected pickle, json, cbor or msgpack)", path)
}

func encodingByExt(path string) (encoding, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return encJSON, true
	case ".cbor":
		return encCBOR, true
	case ".msgpack", ".mpk":
		return encMsgpack, true
	}
	return "", false
}

func decodeAs(enc encoding, data []byte) (any, error) {
	var v any
	var err error
	switch enc {
	case encJSON:
		err = json.Unmarshal(data, &v)
	case encCBOR:
		err = cborDecMode.Unmarshal(data, &v)
	case encMsgpack:
		v, err = decodeMsgpack(data)
	case encPickle:
		v, err = decodePickle(data)
	default:
		err = fmt.Errorf("unknown encoding %s", enc)
	}
	return v, err
}

// decodeMsgpack decodes exactly one value; trailing bytes mean a corrupt or
// concatenated file.
func decodeMsgpack(data []byte) (any, error) {
	r := bytes.NewReader(data)
	var v any
	if err := msgpack.NewDecoder(r).Decode(&v); err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%d trailing bytes after msgpack value", r.Len())
	}
	return v, nil
}

// toSequence applies the ordered-collection contract: a list is used as is,
// a dense multi-dimensional array becomes one entry per leading-axis element.
func toSequence(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case cbor.Tag:
		if v.Number == tagMultiDimArray {
			return decodeMultiDimArray(v)
		}
		flat, err := decodeTypedArray(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(flat))
		for i, f := range flat {
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("not an ordered collection: %T", value)
}

func stringKeys(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
