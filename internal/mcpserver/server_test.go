package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	root, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)

	testutil.WriteFile(t, root, "doc.md", "---\ntags: [draft]\n---\nthe cat and the cat")
	if err := index.Sync(context.Background(), db, store, nil); err != nil {
		t.Fatal(err)
	}
	return New(store, db, slog.New(slog.NewTextHandler(io.Discard, nil))), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers
	// directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_documents":          srv.listDocuments,
		"read_document":           srv.readDocument,
		"list_annotations":        srv.listAnnotations,
		"add_annotation":          srv.addAnnotation,
		"update_annotation":       srv.updateAnnotation,
		"remove_annotation":       srv.removeAnnotation,
		"search_annotations":      srv.searchAnnotations,
		"get_annotation_contract": srv.getAnnotationContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addBySelection(t *testing.T, srv *Server, sel string, occurrence float64) annotation.Annotation {
	t.Helper()
	r := callTool(t, srv, "add_annotation", map[string]any{
		"path":       "doc.md",
		"comment":    "meow",
		"selection":  sel,
		"occurrence": occurrence,
	})
	if r.IsError {
		t.Fatalf("add_annotation: %s", resultText(r))
	}
	var a annotation.Annotation
	if err := json.Unmarshal([]byte(resultText(r)), &a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAddAnnotation_BySelection(t *testing.T) {
	srv, root := testServer(t)

	a := addBySelection(t, srv, "cat", 2)
	base := "---\ntags: [draft]\n---\nthe cat and the cat"
	want := strings.LastIndex(base, "cat")
	if a.Range.Start() != want || a.Selection != "cat" {
		t.Errorf("annotation = %+v, want start %d", a, want)
	}

	data := testutil.ReadFile(t, root, "doc.md")
	if annotation.Strip(data) != base {
		t.Error("base text changed")
	}
	if got := annotation.Decode(data); len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("decoded = %+v", got)
	}
}

func TestAddAnnotation_ByOffsets(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "add_annotation", map[string]any{
		"path": "doc.md", "comment": "x", "start": float64(22), "end": float64(25),
	})
	if r.IsError {
		t.Fatalf("add: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"selection": "the"`) {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestAddAnnotation_Errors(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing occurrence", map[string]any{"path": "doc.md", "comment": "x", "selection": "cat", "occurrence": float64(3)}},
		{"no target", map[string]any{"path": "doc.md", "comment": "x"}},
		{"bad range", map[string]any{"path": "doc.md", "comment": "x", "start": float64(5), "end": float64(500)}},
		{"missing file", map[string]any{"path": "nope.md", "comment": "x", "selection": "cat"}},
		{"missing comment", map[string]any{"path": "doc.md", "selection": "cat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := callTool(t, srv, "add_annotation", tt.args); !r.IsError {
				t.Errorf("expected error, got %s", resultText(r))
			}
		})
	}
}

func TestUpdateAndRemoveAnnotation(t *testing.T) {
	srv, root := testServer(t)
	a := addBySelection(t, srv, "cat", 1)

	r := callTool(t, srv, "update_annotation", map[string]any{"path": "doc.md", "id": a.ID, "comment": "purr"})
	if r.IsError {
		t.Fatalf("update: %s", resultText(r))
	}
	data := testutil.ReadFile(t, root, "doc.md")
	if got := annotation.Decode(data); len(got) != 1 || got[0].Comment != "purr" {
		t.Errorf("after update = %+v", got)
	}

	r = callTool(t, srv, "remove_annotation", map[string]any{"path": "doc.md", "id": a.ID})
	if r.IsError {
		t.Fatalf("remove: %s", resultText(r))
	}
	r = callTool(t, srv, "remove_annotation", map[string]any{"path": "doc.md", "id": a.ID})
	if !r.IsError {
		t.Error("removing twice should fail")
	}
	data = testutil.ReadFile(t, root, "doc.md")
	if strings.Contains(data, "sidenote:") {
		t.Errorf("marker left behind: %q", data)
	}
}

func TestSearchAndListAnnotations(t *testing.T) {
	srv, _ := testServer(t)
	a := addBySelection(t, srv, "cat", 1)

	r := callTool(t, srv, "search_annotations", map[string]any{"query": "meow"})
	if r.IsError || !strings.Contains(resultText(r), a.ID) {
		t.Errorf("search = %s", resultText(r))
	}

	r = callTool(t, srv, "list_annotations", map[string]any{"path": "doc.md"})
	var view documentView
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Annotations) != 1 || len(view.Anchors) != 1 {
		t.Errorf("view = %+v", view)
	}
	if view.Anchors[0].Status != annotation.AnchorExact {
		t.Errorf("anchor = %+v", view.Anchors[0])
	}
}

func TestReadDocument(t *testing.T) {
	srv, _ := testServer(t)
	addBySelection(t, srv, "cat", 1)

	raw := resultText(callTool(t, srv, "read_document", map[string]any{"path": "doc.md", "raw": true}))
	if !strings.Contains(raw, "<!-- sidenote:") {
		t.Errorf("raw read missing marker: %q", raw)
	}

	r := callTool(t, srv, "read_document", map[string]any{"path": "doc.md"})
	if strings.Contains(resultText(r), "<!-- sidenote:") {
		t.Error("base view leaked a marker")
	}
	if !strings.Contains(resultText(r), `"draft"`) {
		t.Errorf("tags missing: %s", resultText(r))
	}

	if r := callTool(t, srv, "read_document", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestListDocuments(t *testing.T) {
	srv, _ := testServer(t)

	if text := resultText(callTool(t, srv, "list_documents", map[string]any{})); !strings.Contains(text, "doc.md") {
		t.Errorf("list = %s", text)
	}
	if text := resultText(callTool(t, srv, "list_documents", map[string]any{"tag": "other"})); strings.Contains(text, "doc.md") {
		t.Errorf("tag filter ignored: %s", text)
	}
}

func TestAnnotationContract(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "get_annotation_contract", nil)); !strings.Contains(text, "<!-- sidenote:") {
		t.Error("contract does not describe the marker")
	}
}
