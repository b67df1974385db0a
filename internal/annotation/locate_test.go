package annotation

import (
	"errors"
	"testing"
)

func TestLocate(t *testing.T) {
	a := sample("a", "world", 8, 13, "c")

	tests := []struct {
		name   string
		base   string
		status AnchorStatus
		want   Range
	}{
		{"unchanged", "Hello **world**", AnchorExact, Range{8, 13}},
		{"shifted by prefix edit", "Oh, Hello **world**", AnchorMoved, Range{12, 17}},
		{"deleted", "Hello **there**", AnchorOrphaned, Range{8, 13}},
		{"text shorter than range", "world", AnchorMoved, Range{0, 5}},
		{"nearest of duplicates", "world.. x world world", AnchorMoved, Range{10, 15}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Locate(tc.base, a)
			if got.Status != tc.status || got.Range != tc.want {
				t.Errorf("Locate = %s %v, want %s %v", got.Status, got.Range, tc.status, tc.want)
			}
			if got.ID != "a" {
				t.Errorf("id = %q", got.ID)
			}
		})
	}
}

func TestLocate_TieBreaksToEarlier(t *testing.T) {
	// Occurrences at 2 and 8 are both 3 bytes from the stored start of 5.
	a := sample("a", "ab", 5, 7, "c")
	got := Locate("xxabxxxxab", a)
	if got.Status != AnchorMoved || got.Range != (Range{2, 4}) {
		t.Errorf("Locate = %s %v", got.Status, got.Range)
	}
}

func TestLocate_StaleRangeAfterUnrelatedEdit(t *testing.T) {
	// The stored range is a creation-time hint; the marker itself is not
	// rewritten when prose changes.
	base := "Hello **world**"
	rec, err := New(base, 8, 13, "nice", fixedTime)
	if err != nil {
		t.Fatal(err)
	}
	text := Add(base, rec)
	edited := "Intro line\n" + text

	stored := Decode(edited)[0]
	if stored.Range != (Range{8, 13}) {
		t.Fatalf("stored range changed: %v", stored.Range)
	}
	anchor := Locate(Strip(edited), stored)
	if anchor.Status != AnchorMoved || anchor.Range != (Range{19, 24}) {
		t.Errorf("anchor = %s %v", anchor.Status, anchor.Range)
	}
}

func TestLocateAll(t *testing.T) {
	list := []Annotation{sample("a", "one", 0, 3, ""), sample("b", "gone", 4, 8, "")}
	anchors := LocateAll("one two", list)
	if len(anchors) != 2 || anchors[0].Status != AnchorExact || anchors[1].Status != AnchorOrphaned {
		t.Errorf("anchors = %+v", anchors)
	}
}

func TestAnchorStatus_MarshalText(t *testing.T) {
	b, _ := AnchorMoved.MarshalText()
	if string(b) != "moved" {
		t.Errorf("text = %q", b)
	}
}

func TestAnchorStatus_UnmarshalText(t *testing.T) {
	var s AnchorStatus
	if err := s.UnmarshalText([]byte("orphaned")); err != nil || s != AnchorOrphaned {
		t.Errorf("status = %v, err = %v", s, err)
	}
	if err := s.UnmarshalText([]byte("lost")); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestOccurrence(t *testing.T) {
	tests := []struct {
		base, sel string
		n         int
		want      Range
		wantErr   bool
	}{
		{"the cat and the cat", "cat", 1, Range{4, 7}, false},
		{"the cat and the cat", "cat", 2, Range{16, 19}, false},
		{"aaa", "aa", 2, Range{1, 3}, false},
		{"the cat", "cat", 2, Range{}, true},
		{"the cat", "dog", 1, Range{}, true},
		{"the cat", "", 1, Range{}, true},
		{"the cat", "cat", 0, Range{}, true},
	}
	for _, tt := range tests {
		got, err := Occurrence(tt.base, tt.sel, tt.n)
		if (err != nil) != tt.wantErr {
			t.Errorf("Occurrence(%q, %q, %d) err = %v", tt.base, tt.sel, tt.n, err)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidRange) {
			t.Errorf("err = %v, want ErrInvalidRange", err)
		}
		if got != tt.want {
			t.Errorf("Occurrence(%q, %q, %d) = %v, want %v", tt.base, tt.sel, tt.n, got, tt.want)
		}
	}
}
