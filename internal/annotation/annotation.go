// Package annotation embeds annotation records in markdown text as HTML
// comment markers and decodes them back.
//
// A marker is a single line of the form
//
//	<!-- sidenote: {"id":"...","selection":"...","range":[8,13],"comment":"...","createdAt":"..."} -->
//
// Every mutating operation goes through a full decode, mutate, encode cycle so
// the marker block is always normalised to list order.
package annotation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	markerPrefix = "<!-- sidenote: "
	markerSuffix = " -->"

	// timeLayout matches JavaScript's Date.toISOString output.
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrInvalidRange is returned when a selection does not describe a
// non-empty, in-bounds slice of the marker-free text.
var ErrInvalidRange = errors.New("annotation: invalid range")

// Range is a half-open [start, end) byte offset pair into marker-free text.
type Range [2]int

// Start returns the inclusive start offset.
func (r Range) Start() int { return r[0] }

// End returns the exclusive end offset.
func (r Range) End() int { return r[1] }

// Len returns the number of bytes covered by the range.
func (r Range) Len() int { return r[1] - r[0] }

// Annotation is a comment bound to a literal selection of document text.
type Annotation struct {
	ID        string    `json:"id"`
	Selection string    `json:"selection"`
	Range     Range     `json:"range"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`

	// stamp is createdAt exactly as read from a marker, kept when it is not
	// in timeLayout so re-encoding writes it back unchanged.
	stamp string
}

// New builds an annotation for base[start:end]. base must be marker-free
// text (see Strip). The creation time is truncated to milliseconds, which is
// the precision the marker format carries.
func New(base string, start, end int, comment string, now time.Time) (Annotation, error) {
	if start < 0 || end > len(base) || start >= end {
		return Annotation{}, fmt.Errorf("%w: [%d,%d) in text of length %d", ErrInvalidRange, start, end, len(base))
	}
	if !utf8.RuneStart(base[start]) || (end < len(base) && !utf8.RuneStart(base[end])) {
		return Annotation{}, fmt.Errorf("%w: [%d,%d) splits a UTF-8 sequence", ErrInvalidRange, start, end)
	}
	return Annotation{
		ID:        uuid.NewString(),
		Selection: base[start:end],
		Range:     Range{start, end},
		Comment:   comment,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
	}, nil
}

// Add appends rec to the annotations embedded in text. An existing record
// with the same id is replaced.
func Add(text string, rec Annotation) string {
	list := Decode(text)
	out := make([]Annotation, 0, len(list)+1)
	for _, a := range list {
		if a.ID != rec.ID {
			out = append(out, a)
		}
	}
	out = append(out, rec)
	return Encode(Strip(text), out)
}

// Update replaces the comment of the annotation with the given id. If no
// annotation matches, text is returned unchanged.
func Update(text, id, comment string) string {
	list := Decode(text)
	found := false
	for i := range list {
		if list[i].ID == id {
			list[i].Comment = comment
			found = true
			break
		}
	}
	if !found {
		return text
	}
	return Encode(Strip(text), list)
}

// Remove drops the annotation with the given id. If no annotation matches,
// text is returned unchanged.
func Remove(text, id string) string {
	list := Decode(text)
	out := make([]Annotation, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			out = append(out, a)
		}
	}
	if len(out) == len(list) {
		return text
	}
	return Encode(Strip(text), out)
}

// Find returns the annotation with the given id.
func Find(list []Annotation, id string) (Annotation, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Annotation{}, false
}

// Marker serialises a single annotation as a marker string without a
// trailing newline.
func Marker(a Annotation) string {
	var b strings.Builder
	writeMarker(&b, a)
	return b.String()
}
