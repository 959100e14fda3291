package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagUint64LE      = 71
	tagSint8         = 72
	tagSint16LE      = 77
	tagSint32LE      = 78
	tagSint64LE      = 79
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// decodeMultiDimArray turns a row-major tag 40 array into nested []any
// lists, one level per dimension, so it has the same shape a JSON decode of
// the equivalent nested list would have.
func decodeMultiDimArray(tag cbor.Tag) ([]any, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) == 0 {
		return nil, errors.New("invalid multidim dimensions")
	}

	dims := make([]int, len(dimsRaw))
	total := 1
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative multidim dimension %d", n)
		}
		dims[i] = n
		total *= n
	}

	var flat []float64
	switch v := items[1].(type) {
	case cbor.Tag:
		var err error
		flat, err = decodeTypedArray(v)
		if err != nil {
			return nil, err
		}
	case []any:
		flat = make([]float64, len(v))
		for i, e := range v {
			f, ok := toFloat(e)
			if !ok {
				return nil, fmt.Errorf("non numeric multidim element %T", e)
			}
			flat[i] = f
		}
	default:
		return nil, fmt.Errorf("unsupported multidim content %T", v)
	}

	if total != len(flat) {
		return nil, errors.New("dimension mismatch")
	}

	out, _ := reshape(flat, dims)
	return out, nil
}

func reshape(flat []float64, dims []int) ([]any, []float64) {
	out := make([]any, dims[0])
	for i := range out {
		if len(dims) == 1 {
			out[i] = flat[0]
			flat = flat[1:]
			continue
		}
		out[i], flat = reshape(flat, dims[1:])
	}
	return out, flat
}

func decodeTypedArray(tag cbor.Tag) ([]float64, error) {
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	var size int
	var read func(b []byte) float64
	switch tag.Number {
	case tagUint8:
		size, read = 1, func(b []byte) float64 { return float64(b[0]) }
	case tagSint8:
		size, read = 1, func(b []byte) float64 { return float64(int8(b[0])) }
	case tagUint16LE:
		size, read = 2, func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }
	case tagSint16LE:
		size, read = 2, func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }
	case tagUint32LE:
		size, read = 4, func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }
	case tagSint32LE:
		size, read = 4, func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) }
	case tagUint64LE:
		size, read = 8, func(b []byte) float64 { return float64(binary.LittleEndian.Uint64(b)) }
	case tagSint64LE:
		size, read = 8, func(b []byte) float64 { return float64(int64(binary.LittleEndian.Uint64(b))) }
	case tagFloat32LE:
		size, read = 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
	case tagFloat64LE:
		size, read = 8, func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}

	if len(data)%size != 0 {
		return nil, fmt.Errorf("typed array tag %d: %d bytes is not a multiple of %d", tag.Number, len(data), size)
	}

	out := make([]float64, len(data)/size)
	for i := range out {
		out[i] = read(data[i*size : (i+1)*size])
	}
	return out, nil
}

func toInt(v any) (int, error) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	return int(f), nil
}
