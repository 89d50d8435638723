package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

func boolValue(raw map[string]any, key string, fallback bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, invalidKey(key, "must be a boolean", v)
	}
	return b, nil
}

// stringMap reads a mapping of scalar values as strings.
func stringMap(raw map[string]any, key string) (map[string]string, error) {
	out := map[string]string{}
	v, ok := raw[key]
	if !ok || v == nil {
		return out, nil
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, invalidKey(key, "must be a mapping", v)
	}
	for name, value := range m {
		switch typed := value.(type) {
		case string:
			out[name] = typed
		case bool, int, int64, float64:
			out[name] = fmt.Sprint(typed)
		case nil:
			out[name] = ""
		default:
			return nil, invalidKey(key+"."+name, "must be a scalar", value)
		}
	}
	return out, nil
}

func stringValue(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", invalidKey(key, "must be a string", v)
	}
	return strings.TrimSpace(s), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}
