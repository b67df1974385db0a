package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/document"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/picker"
	"github.com/starford/sidenote/internal/render"
)

// ViewOptions controls how View renders a document.
type ViewOptions struct {
	Width int
	Style string
	Raw   bool
}

// View prints the document at path with its annotations.
func View(ctx context.Context, path string, vo ViewOptions, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	res, err := app.openResources(ctx, app.newLogger(), false)
	if err != nil {
		return err
	}
	defer res.Close()

	text, err := res.store.ReadText(ctx, path)
	if err != nil {
		return err
	}
	if vo.Raw {
		_, err = fmt.Fprint(app.out, text)
		return err
	}
	out, err := render.New(render.WithWidth(vo.Width), render.WithStyle(vo.Style)).Render(text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(app.out, out)
	return err
}

// AnnotateTarget identifies the text to annotate: a selection with its
// occurrence, or explicit byte offsets when Selection is empty.
type AnnotateTarget struct {
	Selection  string
	Occurrence int
	Start, End int
}

// AddAnnotation annotates text in the document at path and prints the new
// annotation as JSON.
func AddAnnotation(ctx context.Context, path string, target AnnotateTarget, comment string, opts ...Option) error {
	return withDocument(ctx, path, opts, func(app *application, doc *document.Document) error {
		start, end := target.Start, target.End
		if target.Selection != "" {
			r, err := annotation.Occurrence(annotation.Strip(doc.Text()), target.Selection, target.Occurrence)
			if err != nil {
				return err
			}
			start, end = r.Start(), r.End()
		}
		a, err := doc.Annotate(start, end, comment)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	})
}

// UpdateAnnotation replaces the comment of annotation id in path.
func UpdateAnnotation(ctx context.Context, path, id, comment string, opts ...Option) error {
	return withDocument(ctx, path, opts, func(_ *application, doc *document.Document) error {
		return doc.UpdateAnnotation(id, comment)
	})
}

// RemoveAnnotation deletes annotation id from path.
func RemoveAnnotation(ctx context.Context, path, id string, opts ...Option) error {
	return withDocument(ctx, path, opts, func(_ *application, doc *document.Document) error {
		return doc.RemoveAnnotation(id)
	})
}

// withDocument opens path through the document state machine, applies fn,
// saves and refreshes the index entry.
func withDocument(ctx context.Context, path string, opts []Option, fn func(*application, *document.Document) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()
	res, err := app.openResources(ctx, logger, false)
	if err != nil {
		return err
	}
	defer res.Close()

	doc := document.New(res.store, document.WithLogger(logger))
	if err := doc.Open(ctx, path); err != nil {
		return err
	}
	if err := fn(app, doc); err != nil {
		return err
	}
	if err := doc.Save(ctx); err != nil {
		return err
	}
	if err := index.IndexText(res.db, path, doc.Text(), time.Now()); err != nil {
		logger.Warn("index update failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return nil
}

// ListAnnotations prints the annotations of path with their anchor status.
func ListAnnotations(ctx context.Context, path string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	res, err := app.openResources(ctx, app.newLogger(), false)
	if err != nil {
		return err
	}
	defer res.Close()

	text, err := res.store.ReadText(ctx, path)
	if err != nil {
		return err
	}
	base := annotation.Strip(text)
	list := annotation.Decode(text)
	anchors := annotation.LocateAll(base, list)

	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRANGE\tSELECTION\tCOMMENT")
	for i, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%q\t%s\n",
			a.ID, anchors[i].Status, anchors[i].Range.Start(), anchors[i].Range.End(), a.Selection, a.Comment)
	}
	return tw.Flush()
}

// ListRecent prints recently used workspaces, most recent first.
func ListRecent(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	res, err := app.openResources(ctx, app.newLogger(), false)
	if err != nil {
		return err
	}
	defer res.Close()

	list, err := res.recent.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATH\tLAST OPENED")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.RootPath, p.LastOpened.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// Pick lets the user choose a workspace folder interactively, records it as
// recently used and prints its path.
func Pick(ctx context.Context, start string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	dir, err := picker.Pick(ctx, start)
	if err != nil {
		return err
	}

	app.config.Workspace.Root = dir
	res, err := app.openResources(ctx, app.newLogger(), false)
	if err != nil {
		return err
	}
	defer res.Close()

	if _, err := res.recent.Add(dir, ""); err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.out, dir)
	return err
}
