package tools

import (
	"encoding/json"
	"math"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// Argument decoding for JSON-sourced tool arguments. Numbers arrive as
// float64 from encoding/json; in-process callers may pass ints.

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", store.NewValidationError(key, "must be a string, got %T", v)
	}
	return s, nil
}

func requiredStringArg(args map[string]any, key string) (string, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", store.NewValidationError(key, "is required")
	}
	return s, nil
}

func intArg(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return &n, nil
	case int64:
		i := int(n)
		return &i, nil
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, store.NewValidationError(key, "must be an integer, got %q", n.String())
		}
		f = parsed
	default:
		return nil, store.NewValidationError(key, "must be an integer, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, store.NewValidationError(key, "must be an integer, got %v", f)
	}
	i := int(f)
	return &i, nil
}

func floatArg(args map[string]any, key string) (*float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, store.NewValidationError(key, "must be a number, got %q", n.String())
		}
		f = parsed
	default:
		return nil, store.NewValidationError(key, "must be a number, got %T", v)
	}
	return &f, nil
}

func metadataArg(args map[string]any, key string) (store.Metadata, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return store.Metadata(m), nil
	case store.Metadata:
		return m, nil
	default:
		return nil, store.NewValidationError(key, "must be a JSON object, got %T", v)
	}
}
