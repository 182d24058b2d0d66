package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/zettel"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	_, repo := testutil.TestRepo(t)
	db := testutil.TestDB(t)
	svc := zettel.New(repo, db, testutil.Logger())
	return New(svc, t.TempDir())
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handler
	// functions are invoked directly.
	var result *mcp.CallToolResult
	var err error
	switch name {
	case "zk_create_note":
		result, err = srv.createNote(ctx, req)
	case "zk_get_note":
		result, err = srv.getNote(ctx, req)
	case "zk_update_note":
		result, err = srv.updateNote(ctx, req)
	case "zk_delete_note":
		result, err = srv.deleteNote(ctx, req)
	case "zk_add_tags":
		result, err = srv.addTags(ctx, req)
	case "zk_create_link":
		result, err = srv.createLink(ctx, req)
	case "zk_remove_link":
		result, err = srv.removeLink(ctx, req)
	case "zk_search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "zk_get_linked_notes":
		result, err = srv.getLinkedNotes(ctx, req)
	case "zk_get_all_tags":
		result, err = srv.getAllTags(ctx, req)
	case "zk_find_similar_notes":
		result, err = srv.findSimilar(ctx, req)
	case "zk_find_orphaned_notes":
		result, err = srv.findOrphans(ctx, req)
	case "zk_rebuild_index":
		result, err = srv.rebuildIndex(ctx, req)
	case "zk_batch_create_notes":
		result, err = srv.batchCreateNotes(ctx, req)
	case "zk_batch_delete_notes":
		result, err = srv.batchDeleteNotes(ctx, req)
	case "zk_export_knowledge_base":
		result, err = srv.exportKB(ctx, req)
	case "zk_list_notes_by_date":
		result, err = srv.listByDate(ctx, req)
	case "zk_get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
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

func mustNote(t *testing.T, r *mcp.CallToolResult) models.Note {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool returned error: %s", resultText(r))
	}
	var n models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatalf("unmarshal note: %v (text: %s)", err, resultText(r))
	}
	return n
}

func createTestNote(t *testing.T, srv *Server, title string, tags ...string) models.Note {
	t.Helper()
	args := map[string]any{"title": title, "content": "Body of " + title + "."}
	if len(tags) > 0 {
		anyTags := make([]any, len(tags))
		for i, tag := range tags {
			anyTags[i] = tag
		}
		args["tags"] = anyTags
	}
	return mustNote(t, callTool(t, srv, "zk_create_note", args))
}

func TestCreateAndGetNote(t *testing.T) {
	srv := testServer(t)

	n := createTestNote(t, srv, "Spaced repetition", "memory")
	if n.ID == "" || n.Type != models.NotePermanent {
		t.Fatalf("created note = %+v", n)
	}

	got := mustNote(t, callTool(t, srv, "zk_get_note", map[string]any{"identifier": n.ID}))
	if got.Title != "Spaced repetition" {
		t.Errorf("title = %q", got.Title)
	}

	// Exact title resolves too.
	got = mustNote(t, callTool(t, srv, "zk_get_note", map[string]any{"identifier": "Spaced repetition"}))
	if got.ID != n.ID {
		t.Errorf("lookup by title id = %q, want %q", got.ID, n.ID)
	}
}

func TestCreateNoteMissingTitle(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "zk_create_note", map[string]any{"content": "orphan body"})
	if !r.IsError {
		t.Error("expected error for missing title")
	}
}

func TestUpdateNoteKeepsOmittedFields(t *testing.T) {
	srv := testServer(t)
	n := createTestNote(t, srv, "Draft", "keep")

	got := mustNote(t, callTool(t, srv, "zk_update_note", map[string]any{
		"note_id": n.ID,
		"content": "revised",
	}))
	if got.Content != "revised" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Title != "Draft" || len(got.Tags) != 1 {
		t.Errorf("omitted fields changed: %+v", got)
	}

	// An explicit empty tag list clears the tags.
	got = mustNote(t, callTool(t, srv, "zk_update_note", map[string]any{
		"note_id": n.ID,
		"tags":    []any{},
	}))
	if len(got.Tags) != 0 {
		t.Errorf("tags = %v, want cleared", got.Tags)
	}
}

func TestDeleteNote(t *testing.T) {
	srv := testServer(t)
	n := createTestNote(t, srv, "Ephemeral")

	r := callTool(t, srv, "zk_delete_note", map[string]any{"note_id": n.ID})
	if resultText(r) != "deleted: "+n.ID {
		t.Errorf("delete result = %q", resultText(r))
	}
	if r := callTool(t, srv, "zk_get_note", map[string]any{"identifier": n.ID}); !r.IsError {
		t.Error("expected error reading deleted note")
	}
}

func TestCreateLinkAndLinkedNotes(t *testing.T) {
	srv := testServer(t)
	claim := createTestNote(t, srv, "Claim")
	evidence := createTestNote(t, srv, "Evidence")

	src := mustNote(t, callTool(t, srv, "zk_create_link", map[string]any{
		"source_id":     evidence.ID,
		"target_id":     claim.ID,
		"link_type":     "supports",
		"bidirectional": true,
	}))
	if len(src.Links) != 1 || src.Links[0].Type != models.LinkSupports {
		t.Fatalf("source links = %+v", src.Links)
	}

	r := callTool(t, srv, "zk_get_linked_notes", map[string]any{
		"note_id":   claim.ID,
		"direction": "incoming",
	})
	if r.IsError {
		t.Fatalf("linked notes: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), evidence.ID) {
		t.Errorf("linked notes missing source: %s", resultText(r))
	}

	r = callTool(t, srv, "zk_remove_link", map[string]any{
		"source_id":     evidence.ID,
		"target_id":     claim.ID,
		"link_type":     "supports",
		"bidirectional": true,
	})
	if r.IsError {
		t.Fatalf("remove link: %s", resultText(r))
	}
	r = callTool(t, srv, "zk_find_orphaned_notes", map[string]any{})
	if !strings.Contains(resultText(r), claim.ID) || !strings.Contains(resultText(r), evidence.ID) {
		t.Errorf("both notes should be orphans again: %s", resultText(r))
	}
}

func TestSelfLinkRejected(t *testing.T) {
	srv := testServer(t)
	n := createTestNote(t, srv, "Narcissus")
	r := callTool(t, srv, "zk_create_link", map[string]any{
		"source_id": n.ID,
		"target_id": n.ID,
	})
	if !r.IsError {
		t.Error("expected error for self link")
	}
}

func TestSearchNotes(t *testing.T) {
	srv := testServer(t)
	createTestNote(t, srv, "Goroutine scheduling", "go")
	createTestNote(t, srv, "Sourdough starter", "baking")

	r := callTool(t, srv, "zk_search_notes", map[string]any{"query": "goroutine"})
	if r.IsError {
		t.Fatalf("search: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, "Goroutine scheduling") || strings.Contains(text, "Sourdough") {
		t.Errorf("search results = %s", text)
	}
}

func TestGetAllTags(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "zk_get_all_tags", map[string]any{})
	if resultText(r) != "no tags found" {
		t.Errorf("empty base tags = %q", resultText(r))
	}

	createTestNote(t, srv, "One", "zettel")
	createTestNote(t, srv, "Two", "zettel", "graph")

	r = callTool(t, srv, "zk_get_all_tags", map[string]any{})
	text := resultText(r)
	if !strings.Contains(text, "zettel (2)") || !strings.Contains(text, "graph (1)") {
		t.Errorf("tags = %q", text)
	}
}

func TestFindSimilarNotes(t *testing.T) {
	srv := testServer(t)
	a := createTestNote(t, srv, "Alpha", "go", "concurrency")
	b := createTestNote(t, srv, "Beta", "go", "concurrency")
	createTestNote(t, srv, "Gamma", "cooking")

	r := callTool(t, srv, "zk_find_similar_notes", map[string]any{
		"note_id":   a.ID,
		"threshold": 0.9,
	})
	if r.IsError {
		t.Fatalf("similar: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), b.ID) || strings.Contains(resultText(r), "Gamma") {
		t.Errorf("similar = %s", resultText(r))
	}
}

func TestBatchCreateNotesPartialFailure(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "zk_batch_create_notes", map[string]any{
		"notes": []any{
			map[string]any{"title": "Good", "content": "fine"},
			map[string]any{"title": "Bad"},
			map[string]any{"title": "Also good", "content": "fine too"},
		},
	})
	if r.IsError {
		t.Fatalf("batch create: %s", resultText(r))
	}
	var res models.BatchResult[*models.Note]
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Success != 2 || res.Failures != 1 {
		t.Errorf("counters = %d/%d/%d, want 3/2/1", res.Total, res.Success, res.Failures)
	}
	if res.Results[1].OK || res.Results[1].Error == "" {
		t.Errorf("item 1 = %+v, want failure with message", res.Results[1])
	}
}

func TestBatchDeleteNotes(t *testing.T) {
	srv := testServer(t)
	a := createTestNote(t, srv, "A")
	b := createTestNote(t, srv, "B")

	r := callTool(t, srv, "zk_batch_delete_notes", map[string]any{
		"note_ids": []any{a.ID, b.ID, "20990101000000000"},
	})
	var res models.BatchResult[struct{}]
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Success != 2 || res.Failures != 1 {
		t.Errorf("counters = %d/%d, want 2/1", res.Success, res.Failures)
	}
}

func TestRebuildIndex(t *testing.T) {
	srv := testServer(t)
	createTestNote(t, srv, "Persisted")

	r := callTool(t, srv, "zk_rebuild_index", map[string]any{})
	if resultText(r) != "index rebuilt" {
		t.Errorf("rebuild result = %q", resultText(r))
	}
	got := mustNote(t, callTool(t, srv, "zk_get_note", map[string]any{"identifier": "Persisted"}))
	if got.Title != "Persisted" {
		t.Errorf("note lost across rebuild: %+v", got)
	}
}

func TestExportKnowledgeBase(t *testing.T) {
	srv := testServer(t)
	createTestNote(t, srv, "Exported", "zettel")

	dir := t.TempDir()
	r := callTool(t, srv, "zk_export_knowledge_base", map[string]any{"export_dir": dir})
	if r.IsError {
		t.Fatalf("export: %s", resultText(r))
	}
	if resultText(r) == "" {
		t.Error("export summary is empty")
	}
}

func TestGetNoteContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "zk_get_note_contract", map[string]any{})
	text := resultText(r)
	for _, want := range []string{"zk_create_note", "## Links", "supported_by"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q", want)
		}
	}
}

func TestNoteFormatResource(t *testing.T) {
	srv := testServer(t)
	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents len = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != "ansuz://note-format" || tc.Text == "" {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestListNotesByDateStartDate(t *testing.T) {
	srv := testServer(t)
	n := createTestNote(t, srv, "Dated note")

	result := callTool(t, srv, "zk_list_notes_by_date", map[string]any{
		"start_date": "2000-01-01",
	})
	if !strings.Contains(resultText(result), n.ID) {
		t.Errorf("past start_date left the note out: %s", resultText(result))
	}

	result = callTool(t, srv, "zk_list_notes_by_date", map[string]any{
		"start_date": "2099-01-01",
	})
	if strings.Contains(resultText(result), n.ID) {
		t.Errorf("future start_date kept the note: %s", resultText(result))
	}

	result = callTool(t, srv, "zk_list_notes_by_date", map[string]any{
		"start_date": "yesterday",
	})
	if !result.IsError {
		t.Error("malformed start_date accepted")
	}
}
