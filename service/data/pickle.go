package data

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	"github.com/nlpodyssey/gopickle/pickle"
)

// pickleProtoMarker opens every pickle written with protocol 2 or later.
const pickleProtoMarker = 0x80

func decodePickle(data []byte) (any, error) {
	u := pickle.NewUnpickler(bytes.NewReader(data))
	v, err := u.Load()
	if err != nil {
		return nil, err
	}
	return fromPickle(v)
}

type pickleDict interface {
	Get(key interface{}) (interface{}, bool)
	Len() int
}

type pickleKeyed interface {
	Keys() []interface{}
}

type pickleSeq interface {
	Get(i int) interface{}
	Len() int
}

// fromPickle converts unpickled lists, tuples and dicts into the []any and
// map[string]any values the other decoders produce.
func fromPickle(v interface{}) (any, error) {
	switch n := v.(type) {
	case nil, bool, string, float64, int, int64:
		return n, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	case []byte:
		return n, nil
	}

	if d, ok := v.(pickleDict); ok {
		return fromPickleDict(d)
	}

	if s, ok := v.(pickleSeq); ok {
		out := make([]any, s.Len())
		for i := range out {
			item, err := fromPickle(s.Get(i))
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported pickled value %T (numpy arrays must be pickled as lists)", v)
}

func fromPickleDict(d pickleDict) (map[string]any, error) {
	keys, err := pickleDictKeys(d)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, d.Len())
	for _, k := range keys {
		ks, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", k)
		}
		raw, _ := d.Get(k)
		item, err := fromPickle(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ks, err)
		}
		out[ks] = item
	}
	return out, nil
}

// pickleDictKeys supports both the ordered map dict and the older slice of
// {Key, Value} entries.
func pickleDictKeys(d pickleDict) ([]interface{}, error) {
	if k, ok := d.(pickleKeyed); ok {
		return k.Keys(), nil
	}

	rv := reflect.Indirect(reflect.ValueOf(d))
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unsupported pickled dict %T", d)
	}
	keys := make([]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		entry := reflect.Indirect(rv.Index(i))
		if entry.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unsupported pickled dict %T", d)
		}
		key := entry.FieldByName("Key")
		if !key.IsValid() {
			return nil, fmt.Errorf("unsupported pickled dict %T", d)
		}
		keys = append(keys, key.Interface())
	}
	return keys, nil
}
