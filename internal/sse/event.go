package sse

import (
	"encoding/json"
	"fmt"
)

// Kind names an event on the stream. It is sent as the SSE event field.
type Kind string

const (
	DocumentOpened   Kind = "document.opened"
	DocumentClosed   Kind = "document.closed"
	DocumentSaved    Kind = "document.saved"
	DocumentReloaded Kind = "document.reloaded"
	DocumentConflict Kind = "document.conflict"
	DocumentError    Kind = "document.error"

	FileCreated Kind = "file.created"
	FileUpdated Kind = "file.updated"
	FileDeleted Kind = "file.deleted"

	// TreeUpdated tells clients to refetch the file tree. It follows file
	// creations and deletions, throttled by the broker.
	TreeUpdated Kind = "tree.updated"
)

// FileKind maps a watcher change ("created", "updated", "deleted") to its
// event kind.
func FileKind(change string) (Kind, bool) {
	switch change {
	case "created":
		return FileCreated, true
	case "updated":
		return FileUpdated, true
	case "deleted":
		return FileDeleted, true
	}
	return "", false
}

func (k Kind) reshapesTree() bool {
	return k == FileCreated || k == FileDeleted
}

// Event is one message on the stream.
type Event struct {
	Kind  Kind   `json:"-"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// frame renders ev in text/event-stream framing under sequence number seq.
func (ev Event) frame(seq uint64) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Kind, data)
}
