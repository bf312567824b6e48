package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NormalizeMetadata flattens free-form document metadata into the
// scalar-string form the metadata store accepts: lists become
// comma-joined strings, nested objects are serialized to JSON, scalars
// pass through as their string form. Nil values are dropped.
func NormalizeMetadata(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	normalized := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if value == nil {
			continue
		}
		normalized[key] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// YAML and JSON decoders deliver numbers as float64; keep
		// integral values free of a trailing ".0".
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			parts = append(parts, normalizeValue(item))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return marshalStable(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// marshalStable serializes a nested object to JSON. encoding/json sorts
// map keys, so the output is deterministic.
func marshalStable(m map[string]any) string {
	data, err := json.Marshal(m)
	if err != nil {
		// Unmarshalable values (channels, funcs) should not appear in
		// document metadata; degrade to a sorted key=value listing.
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
		}
		return strings.Join(parts, ",")
	}
	return string(data)
}
