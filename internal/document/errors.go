package document

import (
	"errors"
	"fmt"

	"github.com/starford/sidenote/internal/apperr"
)

// ErrNoConflict is returned by ResolveConflict when nothing is pending.
var ErrNoConflict = errors.New("document: no conflict pending")

// LoadError reports that a document could not be read. The document is
// reset to Empty.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("document: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed write. The document stays dirty and keeps its
// text.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("document: save: %v", e.Err)
	}
	return fmt.Sprintf("document: save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ConflictError reports that the backing file changed while local edits
// were unsaved. Err is set when the file could not be read back.
type ConflictError struct {
	Path string
	Err  error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document: %s changed externally with unsaved local edits: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("document: %s changed externally with unsaved local edits", e.Path)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.ErrConflict) true.
func (e *ConflictError) Is(target error) bool { return target == apperr.ErrConflict }
