package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		// Documents are converted to DBus dictionaries, so any-typed
		// maps must come out with comparable, string-like keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("cbor decoder initialization failed: " + err.Error())
	}
}

// readInput returns the contents of the named file, or of stdin if
// path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bs, nil
}

// loadDocument parses bs in the given format, and returns its content
// as native Go values suitable for dbusvalue.Encode.
func loadDocument(format string, bs []byte) (any, error) {
	var (
		doc any
		err error
	)
	switch format {
	case "json", "jsonc":
		doc, err = loadJSON(bs)
	case "yaml":
		doc, err = loadYAML(bs)
	case "cbor":
		doc, err = loadCBOR(bs)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", format, err)
	}
	return normalize(doc)
}

func loadJSON(bs []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(bs)))
	dec.UseNumber()
	var ret any
	if err := dec.Decode(&ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func loadYAML(bs []byte) (any, error) {
	var ret any
	if err := yaml.Unmarshal(bs, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func loadCBOR(bs []byte) (any, error) {
	var ret any
	if err := cborDecMode.Unmarshal(bs, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

var errNull = errors.New("null values cannot be represented in DBus")

// normalize rewrites the generic output of the document parsers into
// types that have a DBus encoding. Integers become int64, or uint64
// if they do not fit. Other numbers become float64. Maps with
// non-string keys are rekeyed by the keys' string form.
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, errNull
	case bool, string, int64, float64, []byte:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return v, nil
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint:
		if v > math.MaxInt64 {
			return uint64(v), nil
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		return normalizeNumber(string(v))
	case []any:
		ret := make([]any, len(v))
		for i, elem := range v {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			ret[i] = n
		}
		return ret, nil
	case map[string]any:
		ret := make(map[string]any, len(v))
		for k, elem := range v {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("{%s}: %w", k, err)
			}
			ret[k] = n
		}
		return ret, nil
	case map[any]any:
		ret := make(map[string]any, len(v))
		for k, elem := range v {
			ks := fmt.Sprint(k)
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("{%s}: %w", ks, err)
			}
			ret[ks] = n
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("unsupported document value of type %T", v)
	}
}

func normalizeNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}
