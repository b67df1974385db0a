package document

import "github.com/starford/sidenote/internal/annotation"

// Snapshot is a consistent, immutable view of a document.
type Snapshot struct {
	Path        string                  `json:"path"`
	Text        string                  `json:"text"`
	Base        string                  `json:"base"`
	Dirty       bool                    `json:"dirty"`
	State       State                   `json:"state"`
	Mode        Mode                    `json:"mode"`
	Error       string                  `json:"error,omitempty"`
	Conflict    bool                    `json:"conflict"`
	Revision    uint64                  `json:"revision"`
	Annotations []annotation.Annotation `json:"annotations"`
	Anchors     []annotation.Anchor     `json:"anchors"`

	Err error `json:"-"`
}

// Snapshot captures the document under the lock and derives annotations and
// their current anchors outside it.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	s := Snapshot{
		Path:     d.path,
		Text:     d.text,
		Dirty:    d.dirty,
		State:    d.state,
		Mode:     d.mode,
		Conflict: d.conflict,
		Revision: d.rev,
		Err:      d.err,
	}
	d.mu.Unlock()

	if s.Err != nil {
		s.Error = s.Err.Error()
	}
	s.Base = annotation.Strip(s.Text)
	s.Annotations = annotation.Decode(s.Text)
	if s.Annotations == nil {
		s.Annotations = []annotation.Annotation{}
	}
	s.Anchors = annotation.LocateAll(s.Base, s.Annotations)
	return s
}
