package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/document"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/models"
)

// DocumentResponse is the full view of the open document (aliased from the
// domain layer).
type DocumentResponse = document.Snapshot

// OpenRequest is the request body for opening a document.
type OpenRequest struct {
	Path string `json:"path" example:"notes/hello.md" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *OpenRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
	)
}

// TextRequest replaces the document text.
type TextRequest struct {
	Text *string `json:"text" example:"# Hello\nWorld" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *TextRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.NotNil),
	)
}

// ModeRequest switches the view mode. An empty mode toggles.
type ModeRequest struct {
	Mode string `json:"mode" example:"edit"`
}

// Validate implements validation.Validatable.
func (r *ModeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Mode, validation.In("read", "view", "edit")),
	)
}

// AnnotateRequest attaches a comment to [start, end) of the marker-free text.
type AnnotateRequest struct {
	Start   int    `json:"start" example:"8"`
	End     int    `json:"end" example:"13" validate:"required"`
	Comment string `json:"comment" example:"nice"`
}

// Validate implements validation.Validatable.
func (r *AnnotateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Start, validation.Min(0)),
		validation.Field(&r.End, validation.Required, validation.Min(r.Start+1)),
	)
}

// CommentRequest replaces an annotation comment.
type CommentRequest struct {
	Comment *string `json:"comment" example:"even nicer" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *CommentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Comment, validation.NotNil),
	)
}

// ConflictRequest resolves a pending conflict.
type ConflictRequest struct {
	Resolution string `json:"resolution" example:"reload" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *ConflictRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Resolution, validation.Required,
			validation.In("reload", "discard", "keep", "keep_local", "overwrite")),
	)
}

// ModeResponse reports the current view mode.
type ModeResponse struct {
	Mode document.Mode `json:"mode" example:"edit"`
}

// TreeResponse wraps the workspace file tree.
type TreeResponse struct {
	Nodes []*models.Node `json:"nodes" validate:"required"`
}

// AnnotationResponse is a single annotation.
type AnnotationResponse = annotation.Annotation

// SearchResponse wraps annotation search hits.
type SearchResponse struct {
	Results []index.AnnotationHit `json:"results" validate:"required"`
}

// RecentResponse lists recently used workspaces.
type RecentResponse struct {
	Projects []models.RecentProject `json:"projects" validate:"required"`
}
