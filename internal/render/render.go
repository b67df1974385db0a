// Package render draws an annotated document for the terminal: the Markdown
// body through glamour with numbered anchors, followed by a styled list of
// the annotations.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/starford/sidenote/internal/annotation"
)

// DefaultWidth is the wrap width used when none is configured.
const DefaultWidth = 80

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the word wrap width.
func WithWidth(w int) Option {
	return func(r *Renderer) {
		if w >= 20 {
			r.width = w
		}
	}
}

// WithStyle selects a glamour standard style ("dark", "light", "notty", ...).
// An empty style lets glamour detect the terminal background.
func WithStyle(s string) Option {
	return func(r *Renderer) { r.style = s }
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	selStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	commentStyle = lipgloss.NewStyle().PaddingLeft(4)
	refStyle     = lipgloss.NewStyle().Bold(true)
	statusStyles = map[annotation.AnchorStatus]lipgloss.Style{
		annotation.AnchorExact:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		annotation.AnchorMoved:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		annotation.AnchorOrphaned: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Renderer turns raw document text into terminal output.
type Renderer struct {
	width int
	style string
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{width: DefaultWidth, style: "dark"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders text, which may contain annotation markers.
func (r *Renderer) Render(text string) (string, error) {
	base := annotation.Strip(text)
	list := annotation.Decode(text)
	anchors := annotation.LocateAll(base, list)

	body, err := r.markdown(Mark(base, anchors))
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return body, nil
	}
	return body + "\n" + List(base, list, anchors), nil
}

func (r *Renderer) markdown(src string) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithWordWrap(r.width),
		glamour.WithPreservedNewLines(),
	}
	if r.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(r.style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	out, err := tr.Render(src)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return out, nil
}

// Mark inserts a "[n]" reference after each located selection, n being the
// 1-based position of the annotation. Orphaned anchors get no reference.
func Mark(base string, anchors []annotation.Anchor) string {
	type ref struct{ at, n int }
	refs := make([]ref, 0, len(anchors))
	for i, a := range anchors {
		if a.Status == annotation.AnchorOrphaned {
			continue
		}
		refs = append(refs, ref{at: a.Range.End(), n: i + 1})
	}
	// Later offsets first so earlier insertions do not shift them; equal
	// offsets keep ascending reference numbers.
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].at != refs[j].at {
			return refs[i].at > refs[j].at
		}
		return refs[i].n > refs[j].n
	})
	out := base
	for _, r := range refs {
		out = out[:r.at] + fmt.Sprintf("[%d]", r.n) + out[r.at:]
	}
	return out
}

// List formats annotations with their reference number, location and status.
func List(base string, list []annotation.Annotation, anchors []annotation.Anchor) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Annotations (%d)", len(list))))
	b.WriteString("\n\n")
	for i, a := range list {
		anc := anchors[i]
		loc := "-"
		if anc.Status != annotation.AnchorOrphaned {
			line, col := Position(base, anc.Range.Start())
			loc = fmt.Sprintf("%d:%d", line, col)
		}
		fmt.Fprintf(&b, "%s %s %s %s\n",
			refStyle.Render(fmt.Sprintf("[%d]", i+1)),
			statusStyles[anc.Status].Render(anc.Status.String()),
			loc,
			selStyle.Render(quote(a.Selection, 40)))
		if a.Comment != "" {
			b.WriteString(commentStyle.Render(a.Comment))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "    id %s\n", a.ID)
	}
	return b.String()
}

// Position converts a byte offset of text into a 1-based line and column,
// the column counted in runes.
func Position(text string, off int) (line, col int) {
	if off > len(text) {
		off = len(text)
	}
	head := text[:off]
	line = strings.Count(head, "\n") + 1
	if i := strings.LastIndexByte(head, '\n'); i >= 0 {
		head = head[i+1:]
	}
	return line, len([]rune(head)) + 1
}

func quote(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		s = string(r[:max-1]) + "…"
	}
	return fmt.Sprintf("%q", s)
}
