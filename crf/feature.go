package crf

import "fmt"

// FeaturesToAttributes converts a feature dict (with mixed value types)
// to CRF attribute strings with float64 values.
//
// Conversion rules:
//   - string value: "key=value" → 1.0
//   - []string value: "key:item" → 1.0 for each item
//   - []any value: each item converted as "key:item" → 1.0
//   - bool value: "key" → 1.0 if true
//   - numeric value: "key" → float64(value)
//
// Anything else becomes "key" → 1.0.
func FeaturesToAttributes(features map[string]any) map[string]float64 {
	attrs := make(map[string]float64)
	for key, val := range features {
		switch v := val.(type) {
		case string:
			attrs[key+"="+v] = 1.0
		case []string:
			for _, item := range v {
				attrs[key+":"+item] = 1.0
			}
		case []any:
			for _, item := range v {
				attrs[fmt.Sprintf("%s:%v", key, item)] = 1.0
			}
		case bool:
			if v {
				attrs[key] = 1.0
			}
		case int:
			attrs[key] = float64(v)
		case int64:
			attrs[key] = float64(v)
		case float32:
			attrs[key] = float64(v)
		case float64:
			attrs[key] = v
		default:
			attrs[key] = 1.0
		}
	}
	return attrs
}

// SequenceAttributes converts one feature dict per position.
func SequenceAttributes(features []map[string]any) []map[string]float64 {
	attrs := make([]map[string]float64, len(features))
	for t, f := range features {
		attrs[t] = FeaturesToAttributes(f)
	}
	return attrs
}
