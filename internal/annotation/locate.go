package annotation

import (
	"fmt"
	"strings"
)

// AnchorStatus reports how a stored selection relates to the current text.
type AnchorStatus int

const (
	// AnchorExact means the stored range still covers the selection.
	AnchorExact AnchorStatus = iota
	// AnchorMoved means the selection was found at a different offset.
	AnchorMoved
	// AnchorOrphaned means the selection no longer occurs in the text.
	AnchorOrphaned
)

func (s AnchorStatus) String() string {
	switch s {
	case AnchorExact:
		return "exact"
	case AnchorMoved:
		return "moved"
	case AnchorOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AnchorStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AnchorStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "exact":
		*s = AnchorExact
	case "moved":
		*s = AnchorMoved
	case "orphaned":
		*s = AnchorOrphaned
	default:
		return fmt.Errorf("annotation: unknown anchor status %q", b)
	}
	return nil
}

// Anchor is the current location of an annotation's selection.
type Anchor struct {
	ID     string       `json:"id"`
	Status AnchorStatus `json:"status"`
	Range  Range        `json:"range"`
}

// Locate re-derives where a's selection sits in base. The stored range is
// only a hint: when it no longer covers the selection, the occurrence
// closest to the stored start wins, earlier occurrences breaking ties. An
// orphaned anchor keeps the stored range.
func Locate(base string, a Annotation) Anchor {
	start, end := a.Range.Start(), a.Range.End()
	if start >= 0 && end <= len(base) && start <= end && base[start:end] == a.Selection {
		return Anchor{ID: a.ID, Status: AnchorExact, Range: a.Range}
	}
	if a.Selection == "" {
		return Anchor{ID: a.ID, Status: AnchorOrphaned, Range: a.Range}
	}

	best, bestDist := -1, 0
	for from := 0; from <= len(base)-len(a.Selection); {
		i := strings.Index(base[from:], a.Selection)
		if i < 0 {
			break
		}
		pos := from + i
		dist := pos - start
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = pos, dist
		}
		if pos > start {
			// Later occurrences only get further away.
			break
		}
		from = pos + 1
	}
	if best < 0 {
		return Anchor{ID: a.ID, Status: AnchorOrphaned, Range: a.Range}
	}
	return Anchor{ID: a.ID, Status: AnchorMoved, Range: Range{best, best + len(a.Selection)}}
}

// LocateAll anchors every annotation in list against base.
func LocateAll(base string, list []Annotation) []Anchor {
	out := make([]Anchor, len(list))
	for i, a := range list {
		out[i] = Locate(base, a)
	}
	return out
}

// Occurrence returns the range of the n-th (1-based) occurrence of sel in
// base. Occurrences may overlap.
func Occurrence(base, sel string, n int) (Range, error) {
	if sel == "" || n < 1 {
		return Range{}, fmt.Errorf("%w: empty selection or occurrence %d", ErrInvalidRange, n)
	}
	from := 0
	for i := 1; ; i++ {
		j := strings.Index(base[from:], sel)
		if j < 0 {
			return Range{}, fmt.Errorf("%w: %q occurs %d time(s), wanted occurrence %d", ErrInvalidRange, sel, i-1, n)
		}
		if i == n {
			return Range{from + j, from + j + len(sel)}, nil
		}
		from += j + 1
	}
}
