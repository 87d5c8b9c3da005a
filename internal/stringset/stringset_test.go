package stringset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" go ", "", "rust", "go", "  "})
	if diff := cmp.Diff([]string{"go", "rust"}, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
	if Normalize(nil) == nil {
		t.Error("Normalize(nil) should return an empty, non-nil slice")
	}
}

func TestUnionAndDifference(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "b", "c"}, Union([]string{"a", "b"}, []string{"b", "c"})); diff != "" {
		t.Errorf("Union mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, Difference([]string{"a", "b"}, []string{"b", "c"})); diff != "" {
		t.Errorf("Difference mismatch (-want +got):\n%s", diff)
	}
	if !Contains([]string{"x", "y"}, "y") || Contains([]string{"x"}, "X") {
		t.Error("Contains should match exactly")
	}
}
