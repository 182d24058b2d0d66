package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/zettel"
)

// testEnv sets up a temp notes dir, SQLite index, service, and router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*zettel.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithDir(t, authToken)
	return svc, router
}

func testEnvWithDir(t *testing.T, authToken string) (*zettel.Service, http.Handler, string) {
	t.Helper()
	notesDir, repo := testutil.TestRepo(t)
	db := testutil.TestDB(t)
	svc := zettel.New(repo, db, testutil.Logger())
	router := NewRouter(svc, authToken != "", authToken, nil, Defaults{
		ExportDir:   t.TempDir(),
		ExportClean: true,
		SearchLimit: 10,
	})
	return svc, router, notesDir
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, router http.Handler, title, content string, tags ...string) models.Note {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/notes", CreateNoteRequest{
		Title:   title,
		Content: content,
		Tags:    tags,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %q status = %d, body = %s", title, w.Code, w.Body.String())
	}
	var n models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	n := createNote(t, router, "Atomic habits", "One idea per note.", "Habits", " habits ", "method")
	if n.ID == "" {
		t.Fatal("created note has no id")
	}
	if n.Type != models.NotePermanent {
		t.Errorf("note_type = %q, want permanent default", n.Type)
	}
	if len(n.Tags) != 2 || n.Tags[0] != "habits" || n.Tags[1] != "method" {
		t.Errorf("tags = %v, want normalized [habits method]", n.Tags)
	}

	w := doJSON(t, router, http.MethodGet, "/notes/"+n.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Atomic habits" || got.Content != "One idea per note." {
		t.Errorf("got = %+v", got)
	}

	// Exact title also resolves.
	w = doJSON(t, router, http.MethodGet, "/notes/Atomic%20habits", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get by title status = %d", w.Code)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: "no title"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestGetNoteNotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/notes/20990101000000000", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Draft", "v1")

	content := "v2"
	w := doJSON(t, router, http.MethodPut, "/notes/"+n.ID, UpdateNoteRequest{Content: &content})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Draft" {
		t.Errorf("title = %q, omitted field must be kept", got.Title)
	}
	if got.Content != "v2" {
		t.Errorf("content = %q", got.Content)
	}

	bad := "not-a-type"
	w = doJSON(t, router, http.MethodPut, "/notes/"+n.ID, UpdateNoteRequest{NoteType: &bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid note_type status = %d, want 400", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Ephemeral", "gone soon")

	w := doJSON(t, router, http.MethodDelete, "/notes/"+n.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := doJSON(t, router, http.MethodDelete, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestAddTags(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Tagged", "body", "a")

	w := doJSON(t, router, http.MethodPost, "/notes/"+n.ID+"/tags", map[string][]string{"tags": {"b", "A"}})
	if w.Code != http.StatusOK {
		t.Fatalf("add tags status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v, want dedupe to [a b]", got.Tags)
	}

	w = doJSON(t, router, http.MethodPost, "/notes/"+n.ID+"/tags", map[string][]string{"tags": {}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty tags status = %d, want 400", w.Code)
	}
}

func TestLinkLifecycle(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "Claim", "a claim")
	b := createNote(t, router, "Evidence", "some evidence")

	w := doJSON(t, router, http.MethodPost, "/links", CreateLinkRequest{
		SourceID:      b.ID,
		TargetID:      a.ID,
		LinkType:      "supports",
		Bidirectional: true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create link status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/notes/"+a.ID+"/links?direction=incoming", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("linked notes status = %d", w.Code)
	}
	var linked LinkedNotesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &linked)
	if len(linked.Notes) != 1 {
		t.Fatalf("incoming = %d, want 1", len(linked.Notes))
	}

	// Inverse edge was written into the target's file too.
	w = doJSON(t, router, http.MethodGet, "/notes/"+a.ID, nil)
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.Links) != 1 || got.Links[0].Type != models.LinkSupportedBy {
		t.Errorf("target links = %+v, want one supported_by", got.Links)
	}

	w = doJSON(t, router, http.MethodDelete, "/links", RemoveLinkRequest{
		SourceID:      b.ID,
		TargetID:      a.ID,
		LinkType:      "supports",
		Bidirectional: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("remove link status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/notes/"+a.ID+"/links?direction=both", nil)
	linked = LinkedNotesResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &linked)
	if len(linked.Notes) != 0 {
		t.Errorf("links after removal = %d, want 0", len(linked.Notes))
	}
}

func TestCreateLinkErrors(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "Lonely", "no friends")

	w := doJSON(t, router, http.MethodPost, "/links", CreateLinkRequest{SourceID: a.ID, TargetID: a.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self link status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/links", CreateLinkRequest{SourceID: a.ID, TargetID: "20990101000000000"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing target status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/notes/"+a.ID+"/links?direction=sideways", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d, want 400", w.Code)
	}
}

func TestListNotesPaginationAndTagFilter(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "First", "x", "go")
	createNote(t, router, "Second", "y", "go")
	createNote(t, router, "Third", "z", "rust")

	w := doJSON(t, router, http.MethodGet, "/notes?limit=2", nil)
	var list NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 3 || len(list.Notes) != 2 {
		t.Errorf("total = %d len = %d, want 3/2", list.Total, len(list.Notes))
	}

	w = doJSON(t, router, http.MethodGet, "/notes?offset=2", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Notes) != 1 {
		t.Errorf("offset page len = %d, want 1", len(list.Notes))
	}

	w = doJSON(t, router, http.MethodGet, "/notes?tag=go", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 {
		t.Errorf("tag filter total = %d, want 2", list.Total)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Goroutines in practice", "Scheduling and channels.", "go")
	createNote(t, router, "Gardening", "Tomatoes like goroutines do not.", "hobby")

	w := doJSON(t, router, http.MethodGet, "/search?q=goroutines&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Note.Title != "Goroutines in practice" {
		t.Errorf("top hit = %q, title match must outrank content", resp.Results[0].Note.Title)
	}

	w = doJSON(t, router, http.MethodGet, "/search?q=goroutines&tag=hobby", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Note.Title != "Gardening" {
		t.Errorf("tag-filtered search = %+v", resp.Results)
	}
}

func TestTagsGraphAndAnalytics(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "Hub", "center", "zettel")
	b := createNote(t, router, "Spoke", "edge", "zettel", "graph")
	createNote(t, router, "Island", "alone")

	w := doJSON(t, router, http.MethodPost, "/links", CreateLinkRequest{SourceID: a.ID, TargetID: b.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("link status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/tags", nil)
	var tags []TagCount
	_ = json.Unmarshal(w.Body.Bytes(), &tags)
	if len(tags) != 2 || tags[0].Name != "graph" || tags[1].Name != "zettel" || tags[1].Count != 2 {
		t.Errorf("tags = %+v", tags)
	}

	w = doJSON(t, router, http.MethodGet, "/graph", nil)
	var graph GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &graph)
	if len(graph.Nodes) != 3 || len(graph.Links) != 1 {
		t.Errorf("graph = %d nodes %d links, want 3/1", len(graph.Nodes), len(graph.Links))
	}

	w = doJSON(t, router, http.MethodGet, "/analytics/central?limit=5", nil)
	var central []struct {
		Note   *models.Note `json:"note"`
		Degree int          `json:"connections"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &central)
	if len(central) != 2 || central[0].Degree != 1 {
		t.Errorf("central = %+v", central)
	}

	w = doJSON(t, router, http.MethodGet, "/analytics/orphans", nil)
	var orphans []*models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &orphans)
	if len(orphans) != 1 || orphans[0].Title != "Island" {
		t.Errorf("orphans = %+v", orphans)
	}
}

func TestSimilarEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "Alpha", "x", "go", "concurrency")
	createNote(t, router, "Beta", "y", "go", "concurrency")
	createNote(t, router, "Gamma", "z", "cooking")

	w := doJSON(t, router, http.MethodGet, "/notes/"+a.ID+"/similar?threshold=0.5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("similar status = %d", w.Code)
	}
	var similar []struct {
		Note  *models.Note `json:"note"`
		Score float64      `json:"score"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &similar)
	if len(similar) != 1 || similar[0].Note.Title != "Beta" || similar[0].Score != 1.0 {
		t.Errorf("similar = %+v", similar)
	}
}

func TestRecentEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	old := createNote(t, router, "Old", "a")
	createNote(t, router, "New", "b")

	w := doJSON(t, router, http.MethodGet, "/recent", nil)
	var notes []*models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 2 {
		t.Fatalf("recent = %d notes, want 2", len(notes))
	}

	// Touch the older note; by update time it now leads.
	content := "a2"
	if w := doJSON(t, router, http.MethodPut, "/notes/"+old.ID, UpdateNoteRequest{Content: &content}); w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/recent?use_updated=true&limit=1", nil)
	notes = nil
	_ = json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 1 || notes[0].Title != "Old" {
		t.Errorf("recent by update = %+v, want Old first", notes)
	}
}

func TestIndexRebuildAndHealth(t *testing.T) {
	_, router, notesDir := testEnvWithDir(t, "")
	n := createNote(t, router, "Tracked", "indexed body")

	w := doJSON(t, router, http.MethodGet, "/index/health", nil)
	var health map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "fresh" {
		t.Fatalf("health = %+v, want fresh", health)
	}

	// Edit the note file behind the service's back.
	matches, err := filepath.Glob(filepath.Join(notesDir, n.ID+"-*.md"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("glob = %v, %v", matches, err)
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(matches[0], append(raw, []byte("\nexternal edit\n")...), 0o644); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodGet, "/index/health", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "stale" {
		t.Fatalf("health after external edit = %+v, want stale", health)
	}

	if w := doJSON(t, router, http.MethodPost, "/index/rebuild", nil); w.Code != http.StatusNoContent {
		t.Fatalf("rebuild status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/index/health", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "fresh" {
		t.Errorf("health after rebuild = %+v, want fresh", health)
	}
}

func TestExportEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Exported", "content", "zettel")

	dir := t.TempDir()
	w := doJSON(t, router, http.MethodPost, "/export", map[string]any{"dir": dir})
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", w.Code, w.Body.String())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Error("export dir is empty")
	}
}

func TestAuthTokenMode(t *testing.T) {
	_, router := testEnv(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}

func TestRecentStartDateFilter(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Today", "body")

	w := doJSON(t, router, http.MethodGet, "/recent?start_date=2000-01-01", nil)
	var notes []*models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 1 {
		t.Fatalf("past start_date = %d notes, want 1", len(notes))
	}

	w = doJSON(t, router, http.MethodGet, "/recent?start_date=2099-01-01", nil)
	notes = nil
	_ = json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 0 {
		t.Fatalf("future start_date = %d notes, want 0", len(notes))
	}

	w = doJSON(t, router, http.MethodGet, "/recent?start_date=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad start_date status = %d, want 400", w.Code)
	}
}
