package tomlkeys

import (
	"reflect"
	"testing"
)

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		`[watch]
max-watches = 4096
`,
		`watch.max-watches = 4096
`,
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.GetInt("watch.max-watches")
		if !ok {
			t.Fatalf("expected watch.max-watches value")
		}
		if value != 4096 {
			t.Fatalf("expected 4096, got %d", value)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	input := `[Watch]
DRAIN_LIMIT = 123
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.GetInt("watch.drain-limit")
	if !ok {
		t.Fatalf("expected normalized key to resolve")
	}
	if value != 123 {
		t.Fatalf("expected 123, got %d", value)
	}
}

func TestTypePreservation(t *testing.T) {
	input := `follow-symlinks = true
max-watches = 7
metadata-dir = ".git"
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	flag, ok := store.GetBool("follow-symlinks")
	if !ok || !flag {
		t.Fatalf("expected follow-symlinks true")
	}
	count, ok := store.GetInt("max-watches")
	if !ok || count != 7 {
		t.Fatalf("expected max-watches 7, got %d", count)
	}
	name, ok := store.GetString("metadata_dir")
	if !ok || name != ".git" {
		t.Fatalf("expected metadata-dir .git, got %q", name)
	}
	if _, ok := store.GetString("max-watches"); ok {
		t.Fatalf("expected max-watches to not be a string")
	}
}

func TestArraysArePreservedAsValues(t *testing.T) {
	input := `exclude = ["vendor", "build"]
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.flat["exclude"]
	if !ok {
		t.Fatalf("expected exclude key")
	}
	items, ok := value.([]any)
	if !ok {
		t.Fatalf("expected exclude to be []any, got %T", value)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 exclusions, got %d", len(items))
	}
}

func TestFromRawFlattensAnyKeyedMaps(t *testing.T) {
	store := FromRaw(map[string]any{
		"watch": map[any]any{"Root": "/repo", 1: "one"},
	})

	if got, ok := store.GetString("watch.root"); !ok || got != "/repo" {
		t.Fatalf("expected watch.root, got %q", got)
	}
	if !reflect.DeepEqual(store.Keys(), []string{"watch.1", "watch.root"}) {
		t.Fatalf("unexpected keys %v", store.Keys())
	}
}

func TestIntAcceptsWholeNumbersOnly(t *testing.T) {
	cases := []struct {
		value any
		want  int64
		ok    bool
	}{
		{value: 12, want: 12, ok: true},
		{value: int64(-3), want: -3, ok: true},
		{value: uint16(9), want: 9, ok: true},
		{value: 2000.0, want: 2000, ok: true},
		{value: 1.5, ok: false},
		{value: "12", ok: false},
	}
	for _, tc := range cases {
		got, ok := Int(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Int(%#v) = %d, %v; want %d, %v", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}
