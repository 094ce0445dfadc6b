// Package tomlkeys flattens decoded config documents into dotted keys.
// Keys are case-insensitive and treat "_" and "-" alike, so `[watch]
// max_watches` and `watch.max-watches` name the same setting.
package tomlkeys

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

type Store struct {
	flat map[string]any
}

// Decode parses a TOML document into a Store.
func Decode(data []byte) (Store, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Store{}, err
	}
	return FromRaw(raw), nil
}

// FromRaw flattens an already decoded document, such as YAML output.
// When two spellings normalize to the same key, the lexically first wins.
func FromRaw(raw map[string]any) Store {
	collected := make(map[string]any)
	walk("", raw, collected)

	flat := make(map[string]any, len(collected))
	for _, key := range slices.Sorted(maps.Keys(collected)) {
		normalized := NormalizeKey(key)
		if _, taken := flat[normalized]; !taken {
			flat[normalized] = collected[key]
		}
	}
	return Store{flat: flat}
}

// Flat returns a copy of the normalized key/value pairs.
func (s Store) Flat() map[string]any {
	return maps.Clone(s.flat)
}

// Keys lists the normalized keys in sorted order.
func (s Store) Keys() []string {
	return slices.Sorted(maps.Keys(s.flat))
}

func (s Store) lookup(key string) (any, bool) {
	value, ok := s.flat[NormalizeKey(key)]
	return value, ok
}

func (s Store) GetBool(key string) (bool, bool) {
	value, _ := s.lookup(key)
	flag, ok := value.(bool)
	return flag, ok
}

func (s Store) GetString(key string) (string, bool) {
	value, _ := s.lookup(key)
	text, ok := value.(string)
	return text, ok
}

func (s Store) GetInt(key string) (int64, bool) {
	value, ok := s.lookup(key)
	if !ok {
		return 0, false
	}
	return Int(value)
}

// Int converts any integer-valued number to int64. YAML decodes plain
// integers as int and TOML as int64; whole floats are accepted too.
func Int(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		if n == float32(int64(n)) {
			return int64(n), true
		}
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// NormalizeKey lowercases key and maps "_" to "-" in every segment.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
}

func walk(prefix string, node map[string]any, out map[string]any) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch nested := value.(type) {
		case map[string]any:
			walk(path, nested, out)
		case map[any]any:
			converted := make(map[string]any, len(nested))
			for nestedKey, nestedValue := range nested {
				converted[fmt.Sprint(nestedKey)] = nestedValue
			}
			walk(path, converted, out)
		default:
			out[path] = value
		}
	}
}
