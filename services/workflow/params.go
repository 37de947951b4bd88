package workflow

import "time"

// Parameter maps come from JSON, so numbers may arrive as float64; maps
// built in Go may hold native ints. These helpers normalize both and apply
// the schema defaults.

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// durationParam reads a millisecond-valued parameter.
func durationParam(params map[string]any, key string, def time.Duration) time.Duration {
	switch v := params[key].(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	}
	return def
}

func sliceParam(params map[string]any, key string) []any {
	if v, ok := params[key].([]any); ok {
		return v
	}
	return nil
}
