// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz knowledge-base tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/zettel"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *zettel.Service
	exportDir string
}

// New creates a new MCP server with all Ansuz tools registered.
// exportDir is the default target for zk_export_knowledge_base.
func New(svc *zettel.Service, exportDir string) *Server {
	s := &Server{svc: svc, exportDir: exportDir}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("zk_create_note",
		mcp.WithDescription("Create a new note with title, content, type and tags. "+
			"The note id and on-disk layout are generated automatically; read the "+
			"zk_get_note_contract tool or the ansuz://note-format resource for the format."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body of the note")),
		mcp.WithString("note_type", mcp.Description("One of: fleeting, literature, permanent, structure, hub (default permanent)")),
		mcp.WithArray("tags", mcp.Description("Tags to attach to the note"), mcp.WithStringItems()),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("zk_get_note",
		mcp.WithDescription("Retrieve a note by its id, or by exact title if the identifier is not a valid id."),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("Note id or exact title")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("zk_update_note",
		mcp.WithDescription("Update a note's title, content, type or tags. Omitted fields are kept as-is."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note to update")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New body")),
		mcp.WithString("note_type", mcp.Description("New note type")),
		mcp.WithArray("tags", mcp.Description("Replacement tag set (omit to keep current tags)"), mcp.WithStringItems()),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("zk_delete_note",
		mcp.WithDescription("Delete a note and all links that point to it."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("zk_add_tags",
		mcp.WithDescription("Add tags to an existing note without touching its other fields."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("Tags to add"), mcp.WithStringItems()),
	), s.addTags)

	s.mcp.AddTool(mcp.NewTool("zk_create_link",
		mcp.WithDescription("Create a typed link between two notes, optionally with a reverse link on the target."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Id of the source note")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Id of the target note")),
		mcp.WithString("link_type", mcp.Description("One of: reference, extends, extended_by, refines, refined_by, contradicts, contradicted_by, questions, questioned_by, supports, supported_by, related (default reference)")),
		mcp.WithString("description", mcp.Description("Optional description of the relation")),
		mcp.WithBoolean("bidirectional", mcp.Description("Also create the inverse link on the target note")),
	), s.createLink)

	s.mcp.AddTool(mcp.NewTool("zk_remove_link",
		mcp.WithDescription("Remove a typed link between two notes, optionally including its reciprocal."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Id of the source note")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Id of the target note")),
		mcp.WithString("link_type", mcp.Description("Type of the link to remove (default reference)")),
		mcp.WithBoolean("bidirectional", mcp.Description("Also remove the inverse link on the target note")),
	), s.removeLink)

	s.mcp.AddTool(mcp.NewTool("zk_search_notes",
		mcp.WithDescription("Search notes by text, tags and note type. Results are ranked by relevance."),
		mcp.WithString("query", mcp.Description("Text to search for in titles and content")),
		mcp.WithArray("tags", mcp.Description("Only return notes carrying at least one of these tags"), mcp.WithStringItems()),
		mcp.WithString("note_type", mcp.Description("Only return notes of this type")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("zk_get_linked_notes",
		mcp.WithDescription("List notes linked to the given note."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithString("direction", mcp.Description("incoming, outgoing or both (default both)")),
	), s.getLinkedNotes)

	s.mcp.AddTool(mcp.NewTool("zk_get_all_tags",
		mcp.WithDescription("List every tag in the knowledge base with its usage count."),
	), s.getAllTags)

	s.mcp.AddTool(mcp.NewTool("zk_find_similar_notes",
		mcp.WithDescription("Find notes similar to the given note based on shared tags."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note")),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity score between 0 and 1 (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
	), s.findSimilar)

	s.mcp.AddTool(mcp.NewTool("zk_find_central_notes",
		mcp.WithDescription("Find the most connected notes, ordered by total link count."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
	), s.findCentral)

	s.mcp.AddTool(mcp.NewTool("zk_find_orphaned_notes",
		mcp.WithDescription("Find notes with no incoming or outgoing links."),
	), s.findOrphans)

	s.mcp.AddTool(mcp.NewTool("zk_list_notes_by_date",
		mcp.WithDescription("List the most recently created or updated notes."),
		mcp.WithString("start_date", mcp.Description("Only include notes created (or updated) on or after this date (YYYY-MM-DD or RFC 3339)")),
		mcp.WithBoolean("use_updated", mcp.Description("Order by update time instead of creation time")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
	), s.listByDate)

	s.mcp.AddTool(mcp.NewTool("zk_rebuild_index",
		mcp.WithDescription("Rebuild the derived search index from the note files on disk."),
	), s.rebuildIndex)

	s.mcp.AddTool(mcp.NewTool("zk_batch_create_notes",
		mcp.WithDescription("Create multiple notes in one call. Items are independent; "+
			"one item's failure does not roll back the others."),
		mcp.WithArray("notes", mcp.Required(), mcp.Description("Notes to create, each with title, content, note_type, tags")),
	), s.batchCreateNotes)

	s.mcp.AddTool(mcp.NewTool("zk_batch_update_notes",
		mcp.WithDescription("Update multiple notes in one call. Items are independent."),
		mcp.WithArray("notes", mcp.Required(), mcp.Description("Updates, each with note_id and any of title, content, note_type, tags")),
	), s.batchUpdateNotes)

	s.mcp.AddTool(mcp.NewTool("zk_batch_delete_notes",
		mcp.WithDescription("Delete multiple notes in one call. Items are independent."),
		mcp.WithArray("note_ids", mcp.Required(), mcp.Description("Ids of the notes to delete"), mcp.WithStringItems()),
	), s.batchDeleteNotes)

	s.mcp.AddTool(mcp.NewTool("zk_batch_create_links",
		mcp.WithDescription("Create multiple links in one call. Items are independent."),
		mcp.WithArray("links", mcp.Required(), mcp.Description("Links to create, each with source_id, target_id, link_type, description, bidirectional")),
	), s.batchCreateLinks)

	s.mcp.AddTool(mcp.NewTool("zk_batch_search_notes",
		mcp.WithDescription("Run several text searches in one call."),
		mcp.WithArray("queries", mcp.Required(), mcp.Description("Search queries"), mcp.WithStringItems()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results per query (default 10)")),
	), s.batchSearch)

	s.mcp.AddTool(mcp.NewTool("zk_export_knowledge_base",
		mcp.WithDescription("Export all notes as a browsable Markdown tree grouped by note type, with an index page."),
		mcp.WithString("export_dir", mcp.Description("Target directory (defaults to the configured export directory)")),
		mcp.WithBoolean("clean_dir", mcp.Description("Remove existing directory contents first")),
	), s.exportKB)

	s.mcp.AddTool(mcp.NewTool("zk_get_note_contract",
		mcp.WithDescription("Returns the canonical Ansuz note format contract. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical note format used for all notes in the knowledge base."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func resultJSON(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nt := models.NoteType(req.GetString("note_type", ""))
	tags := req.GetStringSlice("tags", nil)

	n, err := s.svc.CreateNote(title, content, nt, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(n), nil
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(identifier)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(n), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var ur zettel.UpdateRequest
	args := req.GetArguments()
	if _, ok := args["title"]; ok {
		v := req.GetString("title", "")
		ur.Title = &v
	}
	if _, ok := args["content"]; ok {
		v := req.GetString("content", "")
		ur.Content = &v
	}
	if _, ok := args["note_type"]; ok {
		nt := models.NoteType(req.GetString("note_type", ""))
		ur.NoteType = &nt
	}
	if _, ok := args["tags"]; ok {
		tags := req.GetStringSlice("tags", nil)
		if tags == nil {
			tags = []string{}
		}
		ur.Tags = tags
	}

	n, err := s.svc.UpdateNote(id, ur)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(n), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNote(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) addTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags := req.GetStringSlice("tags", nil)
	if len(tags) == 0 {
		return mcp.NewToolResultError("tags is required"), nil
	}
	n, err := s.svc.AddTags(id, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(n), nil
}

func (s *Server) createLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targetID, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lt := models.LinkType(req.GetString("link_type", string(models.LinkReference)))
	description := req.GetString("description", "")
	bidirectional := req.GetBool("bidirectional", false)

	src, _, err := s.svc.CreateLink(sourceID, targetID, lt, description, bidirectional, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(src), nil
}

func (s *Server) removeLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targetID, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lt := models.LinkType(req.GetString("link_type", string(models.LinkReference)))
	bidirectional := req.GetBool("bidirectional", false)

	src, err := s.svc.RemoveLink(sourceID, targetID, lt, bidirectional)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(src), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := search.DefaultOptions()
	opts.Tags = req.GetStringSlice("tags", nil)
	opts.NoteType = models.NoteType(req.GetString("note_type", ""))
	opts.Limit = req.GetInt("limit", 10)

	results, err := s.svc.Search(req.GetString("query", ""), opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(results), nil
}

func (s *Server) getLinkedNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := models.ParseDirection(req.GetString("direction", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	linked, err := s.svc.LinkedNotes(id, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(linked), nil
}

func (s *Server) getAllTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.AllTags()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s (%d)\n", name, tags[name])
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) findSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threshold := req.GetFloat("threshold", 0)
	limit := req.GetInt("limit", 10)

	similar, err := s.svc.Similar(id, threshold, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(similar), nil
}

func (s *Server) findCentral(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	central, err := s.svc.Central(req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(central), nil
}

func (s *Server) findOrphans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	orphans, err := s.svc.Orphans()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(orphans), nil
}

func (s *Server) listByDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	useUpdated := req.GetBool("use_updated", false)
	limit := req.GetInt("limit", 10)

	var start time.Time
	if raw := req.GetString("start_date", ""); raw != "" {
		t, err := zettel.ParseStartTime(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		start = t
	}

	notes, err := s.svc.NotesByDate(start, useUpdated, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(notes), nil
}

func (s *Server) rebuildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.RebuildIndex(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("index rebuilt"), nil
}

func (s *Server) batchCreateNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Notes []zettel.NoteInput `json:"notes"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(args.Notes) == 0 {
		return mcp.NewToolResultError("notes is required"), nil
	}
	return resultJSON(s.svc.BatchCreateNotes(args.Notes)), nil
}

func (s *Server) batchUpdateNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Notes []zettel.NoteUpdateInput `json:"notes"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(args.Notes) == 0 {
		return mcp.NewToolResultError("notes is required"), nil
	}
	return resultJSON(s.svc.BatchUpdateNotes(args.Notes)), nil
}

func (s *Server) batchDeleteNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("note_ids", nil)
	if len(ids) == 0 {
		return mcp.NewToolResultError("note_ids is required"), nil
	}
	return resultJSON(s.svc.BatchDeleteNotes(ids)), nil
}

func (s *Server) batchCreateLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Links []zettel.LinkInput `json:"links"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(args.Links) == 0 {
		return mcp.NewToolResultError("links is required"), nil
	}
	return resultJSON(s.svc.BatchCreateLinks(args.Links)), nil
}

func (s *Server) batchSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queries := req.GetStringSlice("queries", nil)
	if len(queries) == 0 {
		return mcp.NewToolResultError("queries is required"), nil
	}
	opts := search.DefaultOptions()
	opts.Limit = req.GetInt("limit", 10)
	return resultJSON(s.svc.BatchSearch(queries, opts)), nil
}

func (s *Server) exportKB(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := req.GetString("export_dir", s.exportDir)
	clean := req.GetBool("clean_dir", true)

	summary, err := export.New(s.svc).Run(dir, clean)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
