package cooperative

import "testing"

func TestCanParent(t *testing.T) {
	tests := []struct {
		parent, child Type
		want          bool
	}{
		{TypeTertiary, TypeSecondary, true},
		{TypeSecondary, TypePrimary, true},
		{TypeTertiary, TypePrimary, false},
		{TypePrimary, TypePrimary, false},
		{TypeSecondary, TypeTertiary, false},
		{Type("union"), TypePrimary, false},
		{TypeTertiary, Type(""), false},
	}
	for _, tt := range tests {
		if got := tt.parent.CanParent(tt.child); got != tt.want {
			t.Errorf("%s.CanParent(%s) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

func TestTypeLevel(t *testing.T) {
	if TypeTertiary.Level() != 1 || TypePrimary.Level() != 3 {
		t.Fatalf("unexpected levels")
	}
	if Type("other").Valid() {
		t.Fatalf("unknown type reported valid")
	}
}
