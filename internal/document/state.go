package document

import (
	"fmt"
	"strings"

	"github.com/starford/sidenote/internal/apperr"
)

// State is the lifecycle state of the open document.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateDirty
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDirty:
		return "dirty"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode is how the document is presented to the user.
type Mode int

const (
	ModeRead Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "read"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode parses "read"/"view" or "edit".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "view":
		return ModeRead, nil
	case "edit":
		return ModeEdit, nil
	default:
		return ModeRead, fmt.Errorf("%w: unknown mode %q", apperr.ErrInvalid, s)
	}
}

// Outcome is the result of handling an external change notification.
type Outcome int

const (
	// OutcomeIgnored: the notification was for another path or arrived while
	// a load was in progress.
	OutcomeIgnored Outcome = iota
	// OutcomeUnchanged: the file on disk matches what was last loaded or
	// saved, typically the echo of our own write.
	OutcomeUnchanged
	// OutcomeReloaded: the document was clean and has been reloaded.
	OutcomeReloaded
	// OutcomeConflict: local edits are unsaved; the caller must resolve.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeReloaded:
		return "reloaded"
	case OutcomeConflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Resolution picks a side of a pending conflict.
type Resolution int

const (
	// ResolveReload discards local edits and reloads from disk.
	ResolveReload Resolution = iota
	// ResolveKeepLocal keeps local edits; the next save overwrites the file.
	ResolveKeepLocal
)

// ParseResolution parses "reload" or "keep".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reload", "discard":
		return ResolveReload, nil
	case "keep", "keep_local", "overwrite":
		return ResolveKeepLocal, nil
	default:
		return ResolveReload, fmt.Errorf("%w: unknown resolution %q", apperr.ErrInvalid, s)
	}
}
