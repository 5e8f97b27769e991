package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Records converts typed values into generic nested records through a JSON
// round trip. v must encode to a JSON object or an array of objects.
// Numbers held in Go float fields decode as float64 even when they are
// whole; other integral numbers decode as int64. Arrays are kept as JSON
// text so every leaf stays a scalar.
func Records(v any) ([]map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	floats := make(map[string]bool)
	collectFloats(reflect.ValueOf(v), "", floats)

	switch x := decoded.(type) {
	case nil:
		return []map[string]any{}, nil
	case map[string]any:
		return []map[string]any{normalize(x, "", floats)}, nil
	case []any:
		out := make([]map[string]any, 0, len(x))
		for i, item := range x {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is %T, not an object", i, item)
			}
			out = append(out, normalize(obj, "", floats))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("records must be an object or array of objects, got %T", decoded)
	}
}

// normalize replaces numbers and arrays in obj, recursing into objects.
// Numbers at a path in floats stay float64.
func normalize(obj map[string]any, prefix string, floats map[string]bool) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		path := joinPath(prefix, k)
		if nested, ok := v.(map[string]any); ok {
			out[k] = normalize(nested, path, floats)
			continue
		}
		if n, ok := v.(json.Number); ok && floats[path] {
			if fl, err := n.Float64(); err == nil {
				out[k] = fl
				continue
			}
		}
		out[k] = scalar(v)
	}
	return out
}

// collectFloats records the dotted JSON path of every float field reachable
// from v. Elements of a top-level slice share the paths of their records;
// nested slices are encoded as text and not visited.
func collectFloats(v reflect.Value, prefix string, out map[string]bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if prefix != "" {
			out[prefix] = true
		}
	case reflect.Slice, reflect.Array:
		if prefix == "" {
			for i := 0; i < v.Len(); i++ {
				collectFloats(v.Index(i), "", out)
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			collectFloats(iter.Value(), joinPath(prefix, iter.Key().String()), out)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, skip := jsonFieldName(f)
			if skip {
				continue
			}
			if name == "" {
				// Untagged embedded struct: its fields are promoted.
				collectFloats(v.Field(i), prefix, out)
				continue
			}
			collectFloats(v.Field(i), joinPath(prefix, name), out)
		}
	}
}

// jsonFieldName returns the JSON key of f, or "" for an untagged embedded
// struct whose fields encoding/json promotes.
func jsonFieldName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")

	if f.Anonymous && name == "" {
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			return "", false
		}
	}
	if !f.IsExported() {
		return "", true
	}
	if name == "" {
		name = f.Name
	}
	return name, false
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
