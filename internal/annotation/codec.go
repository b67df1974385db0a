package annotation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// markerRe matches one marker on a single line. encoding/json escapes '>' so
// a payload produced by Encode never contains the suffix.
var markerRe = regexp.MustCompile(`<!-- sidenote: (\{.*?\}) -->`)

// wireAnnotation fixes the field order of the persisted JSON object.
type wireAnnotation struct {
	ID        string `json:"id"`
	Selection string `json:"selection"`
	Range     [2]int `json:"range"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt"`
}

// payload is the decode-side shape; pointers distinguish absent fields from
// zero values.
type payload struct {
	ID        *string `json:"id"`
	Selection *string `json:"selection"`
	Range     []int   `json:"range"`
	Comment   *string `json:"comment"`
	CreatedAt *string `json:"createdAt"`
}

// MalformedError describes a marker that was found but skipped on decode.
type MalformedError struct {
	Offset int
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("annotation: malformed marker at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("annotation: malformed marker at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Parse decodes every marker in text in order of appearance. Markers that
// fail to parse, lack a required field, or repeat an earlier id are reported
// in skipped and otherwise ignored.
func Parse(text string) (list []Annotation, skipped []*MalformedError) {
	seen := make(map[string]struct{})
	for _, m := range markerRe.FindAllStringSubmatchIndex(text, -1) {
		a, err := decodePayload(text[m[2]:m[3]])
		if err != nil {
			err.Offset = m[0]
			skipped = append(skipped, err)
			continue
		}
		if _, dup := seen[a.ID]; dup {
			skipped = append(skipped, &MalformedError{Offset: m[0], Reason: "duplicate id " + a.ID})
			continue
		}
		seen[a.ID] = struct{}{}
		list = append(list, a)
	}
	return list, skipped
}

// Decode returns the annotations embedded in text. Malformed markers are
// logged at debug level and skipped. Callers that surface them use Parse.
func Decode(text string) []Annotation {
	list, skipped := Parse(text)
	for _, s := range skipped {
		slog.Debug("annotation: skipped marker",
			slog.Int("offset", s.Offset),
			slog.String("error", s.Error()))
	}
	return list
}

func decodePayload(raw string) (Annotation, *MalformedError) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Annotation{}, &MalformedError{Reason: "invalid json", Err: err}
	}
	switch {
	case p.ID == nil || *p.ID == "":
		return Annotation{}, &MalformedError{Reason: "missing id"}
	case p.Selection == nil || *p.Selection == "":
		return Annotation{}, &MalformedError{Reason: "missing selection"}
	case len(p.Range) != 2:
		return Annotation{}, &MalformedError{Reason: "range must have two offsets"}
	case p.Range[0] < 0 || p.Range[1] < p.Range[0]:
		return Annotation{}, &MalformedError{Reason: "range out of order"}
	case p.Comment == nil:
		return Annotation{}, &MalformedError{Reason: "missing comment"}
	case p.CreatedAt == nil:
		return Annotation{}, &MalformedError{Reason: "missing createdAt"}
	}
	created, err := time.Parse(time.RFC3339Nano, *p.CreatedAt)
	if err != nil {
		return Annotation{}, &MalformedError{Reason: "invalid createdAt", Err: err}
	}
	a := Annotation{
		ID:        *p.ID,
		Selection: *p.Selection,
		Range:     Range{p.Range[0], p.Range[1]},
		Comment:   *p.Comment,
		CreatedAt: created.UTC(),
	}
	if *p.CreatedAt != formatCreatedAt(a.CreatedAt) {
		a.stamp = *p.CreatedAt
	}
	return a, nil
}

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// createdAtText returns the stored stamp while it still denotes CreatedAt.
func createdAtText(a Annotation) string {
	if a.stamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, a.stamp); err == nil && t.Equal(a.CreatedAt) {
			return a.stamp
		}
	}
	return formatCreatedAt(a.CreatedAt)
}

// Encode appends one marker line per annotation to base, in list order.
// base is expected to be marker-free.
func Encode(base string, list []Annotation) string {
	if len(list) == 0 {
		return base
	}
	var b strings.Builder
	b.Grow(len(base) + len(list)*160)
	b.WriteString(base)
	for _, a := range list {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		writeMarker(&b, a)
	}
	return b.String()
}

func writeMarker(b *strings.Builder, a Annotation) {
	data, err := json.Marshal(wireAnnotation{
		ID:        a.ID,
		Selection: a.Selection,
		Range:     [2]int(a.Range),
		Comment:   a.Comment,
		CreatedAt: createdAtText(a),
	})
	if err != nil {
		// Only strings and ints are marshalled.
		panic(fmt.Sprintf("annotation: marshal: %v", err))
	}
	b.WriteString(markerPrefix)
	b.Write(data)
	b.WriteString(markerSuffix)
}

// Strip removes every syntactically well-formed marker from text, including
// ones whose payload Decode would skip. A marker that occupies a whole line
// takes one adjoining line break with it so that Strip(Encode(t, l)) == t.
func Strip(text string) string {
	for {
		out, n := stripOnce(text)
		if n == 0 {
			return out
		}
		text = out
	}
}

func stripOnce(text string) (string, int) {
	locs := markerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		ownLine := (start == 0 || text[start-1] == '\n') && (end == len(text) || text[end] == '\n')
		if ownLine {
			switch {
			case start > last:
				start--
			case end < len(text):
				end++
			}
		}
		b.WriteString(text[last:start])
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), len(locs)
}
