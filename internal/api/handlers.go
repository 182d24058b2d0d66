package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/zettel"
)

// Defaults carries configured fallbacks for requests that omit the
// corresponding parameter.
type Defaults struct {
	ExportDir   string
	ExportClean bool
	SearchLimit int
}

// Handler holds API route handlers.
type Handler struct {
	svc    *zettel.Service
	broker *sse.Broker
	def    Defaults
}

// NewHandler creates a new Handler. broker may be nil when SSE is disabled.
func NewHandler(svc *zettel.Service, broker *sse.Broker, def Defaults) *Handler {
	return &Handler{svc: svc, broker: broker, def: def}
}

func (h *Handler) notify(kind, id string) {
	if h.broker != nil {
		h.broker.PublishNoteEvent(kind, id)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional tag filter and pagination
//	@Tags			notes
//	@Produce		json
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	var notes []*models.Note
	var err error
	if tag := q.Get("tag"); tag != "" {
		notes, err = h.svc.NotesByTag(tag)
	} else {
		notes, err = h.svc.AllNotes()
	}
	if err != nil {
		writeError(w, err, "list notes")
		return
	}

	total := len(notes)
	if offset > 0 {
		if offset >= len(notes) {
			notes = nil
		} else {
			notes = notes[offset:]
		}
	}
	if limit > 0 && limit < len(notes) {
		notes = notes[:limit]
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id or exact title
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.svc.GetNote(id)
	if err != nil {
		writeError(w, err, "get note")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	n, err := h.svc.CreateNote(req.Title, req.Content, models.NoteType(req.NoteType), req.Tags)
	if err != nil {
		writeError(w, err, "create note")
		return
	}
	h.notify("created", n.ID)
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Update a note; omitted fields are kept
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ur := zettel.UpdateRequest{Title: req.Title, Content: req.Content, Tags: req.Tags}
	if req.NoteType != nil {
		nt, err := models.ParseNoteType(*req.NoteType)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		ur.NoteType = &nt
	}
	n, err := h.svc.UpdateNote(id, ur)
	if err != nil {
		writeError(w, err, "update note")
		return
	}
	h.notify("updated", n.ID)
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and every link pointing at it
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteNote(id); err != nil {
		writeError(w, err, "delete note")
		return
	}
	h.notify("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// AddTags handles POST /api/notes/{id}/tags.
//
//	@Summary		Add tags to a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		[]string	true	"Tags to add"
//	@Success		200		{object}	models.Note
//	@Security		BearerAuth
//	@Router			/notes/{id}/tags [post]
func (h *Handler) AddTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Tags) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("tags are required"))
		return
	}
	n, err := h.svc.AddTags(id, req.Tags)
	if err != nil {
		writeError(w, err, "add tags")
		return
	}
	h.notify("updated", n.ID)
	writeJSON(w, http.StatusOK, n)
}

// LinkedNotes handles GET /api/notes/{id}/links.
//
//	@Summary		List notes linked to a note
//	@Tags			graph
//	@Produce		json
//	@Param			id			path		string	true	"Note id"
//	@Param			direction	query		string	false	"incoming, outgoing or both"
//	@Success		200			{object}	LinkedNotesResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/links [get]
func (h *Handler) LinkedNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, err := models.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	linked, err := h.svc.LinkedNotes(id, dir)
	if err != nil {
		writeError(w, err, "linked notes")
		return
	}
	if linked == nil {
		linked = []zettel.LinkedNote{}
	}
	writeJSON(w, http.StatusOK, LinkedNotesResponse{Notes: linked})
}

// CreateLink handles POST /api/links.
//
//	@Summary		Create a typed link between two notes
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Link to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	lt := models.LinkType(req.LinkType)
	if req.LinkType == "" {
		lt = models.LinkReference
	}
	src, _, err := h.svc.CreateLink(req.SourceID, req.TargetID, lt, req.Description,
		req.Bidirectional, models.LinkType(req.BidirectionalType))
	if err != nil {
		writeError(w, err, "create link")
		return
	}
	h.notify("updated", src.ID)
	writeJSON(w, http.StatusCreated, src)
}

// RemoveLink handles DELETE /api/links.
//
//	@Summary		Remove a link, optionally with its reciprocal
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RemoveLinkRequest	true	"Link to remove"
//	@Success		200		{object}	models.Note
//	@Security		BearerAuth
//	@Router			/links [delete]
func (h *Handler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	var req RemoveLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	lt := models.LinkType(req.LinkType)
	if req.LinkType == "" {
		lt = models.LinkReference
	}
	src, err := h.svc.RemoveLink(req.SourceID, req.TargetID, lt, req.Bidirectional)
	if err != nil {
		writeError(w, err, "remove link")
		return
	}
	h.notify("updated", src.ID)
	writeJSON(w, http.StatusOK, src)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search over titles, content, tags and type
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Query text"
//	@Param			tag		query		string	false	"Tag filter (repeatable)"
//	@Param			type	query		string	false	"Note type filter"
//	@Param			limit	query		int		false	"Maximum results"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := search.DefaultOptions()
	opts.Tags = q["tag"]
	opts.NoteType = models.NoteType(q.Get("type"))
	if h.def.SearchLimit > 0 {
		opts.Limit = h.def.SearchLimit
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	results, err := h.svc.Search(q.Get("q"), opts)
	if err != nil {
		writeError(w, err, "search")
		return
	}
	dtos := make([]SearchResultDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, SearchResultDTO{
			Note:         res.Note,
			Score:        res.Score,
			MatchedTerms: res.MatchedTerms,
			Context:      res.Context,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: dtos})
}

// Graph handles GET /api/graph.
//
//	@Summary		Full knowledge graph as nodes and edges
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.AllNotes()
	if err != nil {
		writeError(w, err, "graph")
		return
	}
	resp := GraphResponse{Nodes: []GraphNode{}, Links: []GraphLink{}}
	for _, n := range notes {
		resp.Nodes = append(resp.Nodes, GraphNode{ID: n.ID, Title: n.Title, Type: string(n.Type)})
		for _, l := range n.Links {
			resp.Links = append(resp.Links, GraphLink{Source: l.SourceID, Target: l.TargetID, Type: string(l.Type)})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tags handles GET /api/tags.
//
//	@Summary		All tags with usage counts
//	@Tags			search
//	@Produce		json
//	@Success		200	{array}	TagCount
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.AllTags()
	if err != nil {
		writeError(w, err, "tags")
		return
	}
	out := make([]TagCount, 0, len(tags))
	for name, count := range tags {
		out = append(out, TagCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

// Central handles GET /api/analytics/central.
//
//	@Summary		Most connected notes by total link count
//	@Tags			analytics
//	@Produce		json
//	@Param			limit	query	int	false	"Maximum results"
//	@Success		200		{array}	analytics.CentralNote
//	@Security		BearerAuth
//	@Router			/analytics/central [get]
func (h *Handler) Central(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	central, err := h.svc.Central(limit)
	if err != nil {
		writeError(w, err, "central notes")
		return
	}
	writeJSON(w, http.StatusOK, central)
}

// Orphans handles GET /api/analytics/orphans.
//
//	@Summary		Notes with no links in either direction
//	@Tags			analytics
//	@Produce		json
//	@Success		200	{array}	models.Note
//	@Security		BearerAuth
//	@Router			/analytics/orphans [get]
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.svc.Orphans()
	if err != nil {
		writeError(w, err, "orphaned notes")
		return
	}
	if orphans == nil {
		orphans = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, orphans)
}

// Similar handles GET /api/notes/{id}/similar.
//
//	@Summary		Notes similar to the given note by tag overlap
//	@Tags			analytics
//	@Produce		json
//	@Param			id			path	string	true	"Note id"
//	@Param			threshold	query	number	false	"Minimum score in [0,1]"
//	@Param			limit		query	int		false	"Maximum results"
//	@Success		200			{array}	analytics.SimilarNote
//	@Security		BearerAuth
//	@Router			/notes/{id}/similar [get]
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	threshold, _ := strconv.ParseFloat(q.Get("threshold"), 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	similar, err := h.svc.Similar(id, threshold, limit)
	if err != nil {
		writeError(w, err, "similar notes")
		return
	}
	writeJSON(w, http.StatusOK, similar)
}

// Recent handles GET /api/recent.
//
//	@Summary		Most recently created or updated notes
//	@Tags			notes
//	@Produce		json
//	@Param			start_date	query	string	false	"Only notes on or after this date (YYYY-MM-DD or RFC 3339)"
//	@Param			use_updated	query	bool	false	"Order by update time"
//	@Param			limit		query	int		false	"Maximum results"
//	@Success		200			{array}	models.Note
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recent [get]
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	useUpdated := q.Get("use_updated") == "true"
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	var start time.Time
	if raw := q.Get("start_date"); raw != "" {
		t, err := zettel.ParseStartTime(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		start = t
	}
	notes, err := h.svc.NotesByDate(start, useUpdated, limit)
	if err != nil {
		writeError(w, err, "recent notes")
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// RebuildIndex handles POST /api/index/rebuild.
//
//	@Summary		Rebuild the derived index from the note files
//	@Tags			index
//	@Success		204
//	@Security		BearerAuth
//	@Router			/index/rebuild [post]
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RebuildIndex(); err != nil {
		writeError(w, err, "rebuild index")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IndexHealth handles GET /api/index/health.
//
//	@Summary		Report whether the index matches the note files
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/index/health [get]
func (h *Handler) IndexHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CheckFresh(); err != nil {
		if errors.Is(err, apperr.ErrDrift) {
			if h.broker != nil {
				h.broker.PublishDrift(err.Error())
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "stale", "detail": err.Error()})
			return
		}
		writeError(w, err, "index health")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fresh"})
}

// Export handles POST /api/export.
//
//	@Summary		Export the knowledge base as a browsable Markdown tree
//	@Tags			export
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir   string `json:"dir,omitempty"`
		Clean *bool  `json:"clean,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	dir := h.def.ExportDir
	if req.Dir != "" {
		dir = req.Dir
	}
	clean := h.def.ExportClean
	if req.Clean != nil {
		clean = *req.Clean
	}
	summary, err := export.New(h.svc).Run(dir, clean)
	if err != nil {
		writeError(w, err, "export")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dir": dir, "summary": summary})
}
