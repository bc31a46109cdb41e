package idgen

import (
	"sort"
	"testing"
	"time"
)

func TestNewGeneratesValidIDs(t *testing.T) {
	for _, kind := range []string{KindUUID, KindULID, KindKSUID, KindCUID2, KindNanoID} {
		t.Run(kind, func(t *testing.T) {
			g, err := New(kind)
			if err != nil {
				t.Fatalf("New(%q): %v", kind, err)
			}
			seen := make(map[string]bool)
			for i := 0; i < 50; i++ {
				id, err := g.Generate()
				if err != nil {
					t.Fatalf("Generate: %v", err)
				}
				if err := g.Validate(id); err != nil {
					t.Fatalf("Validate(%q): %v", id, err)
				}
				if seen[id] {
					t.Fatalf("duplicate id %q", id)
				}
				seen[id] = true
			}
		})
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New("snowflake"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestULIDMonotonic(t *testing.T) {
	g := NewULIDGenerator()
	fixed := time.Now()
	g.now = func() time.Time { return fixed }

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = MustGenerate(g)
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ULIDs from the same millisecond are not increasing")
	}

	ts, err := ULIDTime(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if ts.UnixMilli() != fixed.UnixMilli() {
		t.Errorf("ULIDTime = %v, want %v", ts, fixed)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		g    Generator
		id   string
	}{
		{"uuid garbage", NewUUIDGenerator(), "not-a-uuid"},
		{"uuid v1", NewUUIDGenerator(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"ulid short", NewULIDGenerator(), "01ARZ3NDEK"},
		{"ksuid short", NewKSUIDGenerator(), "abc"},
		{"code lookalike", NewCodeGenerator(), "ABCDEFG0"},
	}
	for _, tt := range tests {
		if err := tt.g.Validate(tt.id); err == nil {
			t.Errorf("%s: expected %q to be rejected", tt.name, tt.id)
		}
	}
}

func TestCodeGenerator(t *testing.T) {
	g := NewCodeGenerator()
	code := MustGenerate(g)
	if len(code) != CodeSize {
		t.Errorf("len(code) = %d, want %d", len(code), CodeSize)
	}
	if err := g.Validate(code); err != nil {
		t.Error(err)
	}
}
