// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Sidenote annotation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/parser"
	"github.com/starford/sidenote/internal/storage"
)

const contractURI = "sidenote://annotation-format"

// Server wraps the MCP server with Sidenote tools.
type Server struct {
	mcp    *server.MCPServer
	store  storage.Provider
	db     index.AnnotationIndex
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new MCP server with all Sidenote tools registered.
func New(store storage.Provider, db index.AnnotationIndex, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: store, db: db, logger: logger, now: time.Now}

	s.mcp = server.NewMCPServer(
		"Sidenote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed Markdown documents, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Only documents carrying this tag")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document. Returns the marker-free base text with its "+
			"annotations and their anchors, or the raw file when raw is true."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/doc.md)")),
		mcp.WithBoolean("raw", mcp.Description("Return the file content including annotation markers")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_annotations",
		mcp.WithDescription("List the annotations of a document with their current anchors."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
	), s.listAnnotations)

	s.mcp.AddTool(mcp.NewTool("add_annotation",
		mcp.WithDescription("Attach a comment to text in a document. Identify the text either by "+
			"selection (plus occurrence when it repeats) or by start/end byte offsets into the base "+
			"text returned by read_document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Comment text")),
		mcp.WithString("selection", mcp.Description("Literal text to annotate")),
		mcp.WithNumber("occurrence", mcp.Description("1-based occurrence of selection (default 1)")),
		mcp.WithNumber("start", mcp.Description("Start byte offset, used when selection is empty")),
		mcp.WithNumber("end", mcp.Description("End byte offset (exclusive)")),
	), s.addAnnotation)

	s.mcp.AddTool(mcp.NewTool("update_annotation",
		mcp.WithDescription("Replace the comment of an annotation."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("New comment text")),
	), s.updateAnnotation)

	s.mcp.AddTool(mcp.NewTool("remove_annotation",
		mcp.WithDescription("Delete an annotation. The annotated text is left untouched."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
	), s.removeAnnotation)

	s.mcp.AddTool(mcp.NewTool("search_annotations",
		mcp.WithDescription("Search annotation comments and selections across the workspace."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchAnnotations)

	s.mcp.AddTool(mcp.NewTool("get_annotation_contract",
		mcp.WithDescription("Returns how annotations are stored inside Markdown files."),
	), s.getAnnotationContract)

	// Resource: annotation format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Annotation Format Contract",
			mcp.WithResourceDescription("How Sidenote embeds annotations in Markdown."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// documentView is what read_document and list_annotations return.
type documentView struct {
	Path        string                  `json:"path"`
	Title       string                  `json:"title,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	Base        string                  `json:"base,omitempty"`
	Annotations []annotation.Annotation `json:"annotations"`
	Anchors     []annotation.Anchor     `json:"anchors"`
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.db.ListDocuments(req.GetString("tag", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.store.ReadText(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if req.GetBool("raw", false) {
		return mcp.NewToolResultText(text), nil
	}
	view := viewOf(path, text, true)
	res := parser.Parse(text)
	view.Title, view.Tags = res.Title, res.Tags
	return jsonResult(view), nil
}

func (s *Server) listAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.store.ReadText(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return jsonResult(viewOf(path, text, false)), nil
}

func viewOf(path, text string, withBase bool) documentView {
	base := annotation.Strip(text)
	list := annotation.Decode(text)
	if list == nil {
		list = []annotation.Annotation{}
	}
	v := documentView{
		Path:        path,
		Annotations: list,
		Anchors:     annotation.LocateAll(base, list),
	}
	if withBase {
		v.Base = base
	}
	return v
}

func (s *Server) addAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comment, err := req.RequireString("comment")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var created annotation.Annotation
	err = s.edit(ctx, path, func(text string) (string, error) {
		base := annotation.Strip(text)
		start, end, err := resolveTarget(base, req)
		if err != nil {
			return "", err
		}
		created, err = annotation.New(base, start, end, comment, s.now())
		if err != nil {
			return "", err
		}
		return annotation.Add(text, created), nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(created), nil
}

// resolveTarget turns the selection/occurrence or start/end arguments into a
// byte range of base.
func resolveTarget(base string, req mcp.CallToolRequest) (int, int, error) {
	if sel := req.GetString("selection", ""); sel != "" {
		r, err := annotation.Occurrence(base, sel, req.GetInt("occurrence", 1))
		return r.Start(), r.End(), err
	}
	start, end := req.GetInt("start", -1), req.GetInt("end", -1)
	if start < 0 || end < 0 {
		return 0, 0, errors.New("either selection or start and end are required")
	}
	return start, end, nil
}

func (s *Server) updateAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comment, err := req.RequireString("comment")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.edit(ctx, path, func(text string) (string, error) {
		if _, ok := annotation.Find(annotation.Decode(text), id); !ok {
			return "", fmt.Errorf("annotation not found: %s", id)
		}
		return annotation.Update(text, id, comment), nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) removeAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.edit(ctx, path, func(text string) (string, error) {
		if _, ok := annotation.Find(annotation.Decode(text), id); !ok {
			return "", fmt.Errorf("annotation not found: %s", id)
		}
		return annotation.Remove(text, id), nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", id)), nil
}

// edit applies fn to the file at path, writes the result atomically and
// refreshes the index entry.
func (s *Server) edit(ctx context.Context, path string, fn func(text string) (string, error)) error {
	text, err := s.store.ReadText(ctx, path)
	if err != nil {
		return fmt.Errorf("not found: %s", path)
	}
	next, err := fn(text)
	if err != nil {
		return err
	}
	if next == text {
		return nil
	}
	if err := s.store.WriteTextAtomic(ctx, path, next); err != nil {
		return err
	}
	if err := index.IndexText(s.db, path, next, s.now()); err != nil {
		s.logger.Warn("mcp: index update failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return nil
}

func (s *Server) searchAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.db.SearchAnnotations(query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) getAnnotationContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationFormatContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     AnnotationFormatContract,
		},
	}, nil
}
