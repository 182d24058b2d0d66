// Package zettel is the operation layer: note CRUD, link operations, and
// queries, coordinated across the file repository and the derived index.
package zettel

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/analytics"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/noteid"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/storage"
)

// Service bundles the repository and index handles with the domain engines.
// It is constructed once per process and passed explicitly to every
// transport; there is no global store.
//
// Writes are fully serialized through mu: a note mutation must complete its
// file write before its index write, and readers must never observe the gap
// between the two. Reads take the shared lock and may run concurrently.
type Service struct {
	mu        sync.RWMutex
	repo      storage.Repository
	db        index.NoteIndex
	graph     *graph.Graph
	search    *search.Engine
	analytics *analytics.Analyzer
	ids       *noteid.Generator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service over the given stores.
func New(repo storage.Repository, db index.NoteIndex, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		db:        db,
		graph:     graph.New(repo, db, logger),
		search:    search.New(db),
		analytics: analytics.New(db),
		ids:       noteid.NewGenerator(),
		logger:    logger,
		now:       time.Now,
	}
}

// Close releases the index handle.
func (s *Service) Close() error {
	return s.db.Close()
}

// CreateNote validates and persists a new note: file first, then index.
func (s *Service) CreateNote(title, content string, nt models.NoteType, tags []string) (*models.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &apperr.Validation{Field: "title", Reason: "title is required"}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &apperr.Validation{Field: "content", Reason: "content is required"}
	}
	if nt == "" {
		nt = models.NotePermanent
	}
	if _, err := models.ParseNoteType(string(nt)); err != nil {
		return nil, &apperr.Validation{Field: "note_type", Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.ids.Next()
	id := base
	// Timestamp ids collide only across processes; resolve by suffixing
	// rather than failing.
	for i := 0; s.repo.Exists(id); i++ {
		if i >= 100 {
			return nil, &apperr.Duplicate{ID: base}
		}
		id = fmt.Sprintf("%s%d", base, i)
	}

	now := s.now()
	n := &models.Note{
		ID:        id,
		Title:     title,
		Content:   content,
		Type:      nt,
		Tags:      normalizeTags(tags),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Put(n); err != nil {
		return nil, err
	}
	s.indexNote(n)
	return n, nil
}

// GetNote resolves a note by id, falling back to exact title lookup via the
// index when the identifier is not a valid id or has no file.
func (s *Service) GetNote(identifier string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if noteid.Valid(identifier) && s.repo.Exists(identifier) {
		return s.repo.Get(identifier)
	}
	rec, err := s.db.GetNoteByTitle(identifier)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &apperr.NotFound{ID: identifier}
	}
	return s.repo.Get(rec.ID)
}

// UpdateRequest carries optional field updates; nil means leave unchanged.
type UpdateRequest struct {
	Title    *string
	Content  *string
	NoteType *models.NoteType
	Tags     []string // nil keeps existing tags; empty slice clears them
}

// UpdateNote applies the given changes, refreshes updated_at, and writes
// through to both stores.
func (s *Service) UpdateNote(id string, req UpdateRequest) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, &apperr.Validation{Field: "title", Reason: "title cannot be empty"}
		}
		n.Title = *req.Title
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, &apperr.Validation{Field: "content", Reason: "content cannot be empty"}
		}
		n.Content = *req.Content
	}
	if req.NoteType != nil {
		if _, err := models.ParseNoteType(string(*req.NoteType)); err != nil {
			return nil, &apperr.Validation{Field: "note_type", Reason: err.Error()}
		}
		n.Type = *req.NoteType
	}
	if req.Tags != nil {
		n.Tags = normalizeTags(req.Tags)
	}
	n.UpdatedAt = s.now()

	if err := s.repo.Put(n); err != nil {
		return nil, err
	}
	s.indexNote(n)
	return n, nil
}

// AddTags appends tags to a note, skipping duplicates.
func (s *Service) AddTags(id string, tags []string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, t := range normalizeTags(tags) {
		if n.AddTag(t) {
			changed = true
		}
	}
	if !changed {
		return n, nil
	}
	n.UpdatedAt = s.now()
	if err := s.repo.Put(n); err != nil {
		return nil, err
	}
	s.indexNote(n)
	return n, nil
}

// DeleteNote removes the note file and cascades: every index edge where the
// note is source or target disappears, and each referring note's file is
// rewritten without its links to the deleted id, so a later rebuild cannot
// resurrect them. Linked notes themselves are never deleted.
func (s *Service) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming, linksErr := s.db.Links(id, models.DirIncoming)

	if err := s.repo.Delete(id); err != nil {
		return err
	}
	if err := s.db.RemoveNote(id); err != nil {
		s.logger.Warn("index drift: note removal not indexed, rebuild will repair",
			slog.String("id", id), slog.String("error", err.Error()))
	}

	if linksErr != nil {
		s.logger.Warn("delete cascade: incoming links unknown, rebuild will repair",
			slog.String("id", id), slog.String("error", linksErr.Error()))
		return nil
	}
	done := make(map[string]struct{}, len(incoming))
	for _, l := range incoming {
		src := l.SourceID
		if _, ok := done[src]; ok {
			continue
		}
		done[src] = struct{}{}

		n, err := s.repo.Get(src)
		if err != nil {
			s.logger.Warn("delete cascade: source read failed",
				slog.String("id", src), slog.String("error", err.Error()))
			continue
		}
		kept := n.Links[:0]
		for _, nl := range n.Links {
			if nl.TargetID != id {
				kept = append(kept, nl)
			}
		}
		if len(kept) == len(n.Links) {
			continue
		}
		n.Links = kept
		if err := s.repo.Put(n); err != nil {
			s.logger.Warn("delete cascade: source rewrite failed",
				slog.String("id", src), slog.String("error", err.Error()))
			continue
		}
		s.indexNote(n)
	}
	return nil
}

// CreateLink persists a directed (optionally bidirectional) edge.
func (s *Service) CreateLink(sourceID, targetID string, lt models.LinkType, description string,
	bidirectional bool, bidirectionalType models.LinkType) (*models.Note, *models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.CreateLink(sourceID, targetID, lt, description, bidirectional, bidirectionalType)
}

// RemoveLink drops a directed edge and, optionally, its reciprocal.
func (s *Service) RemoveLink(sourceID, targetID string, lt models.LinkType, removeReciprocal bool) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.RemoveLink(sourceID, targetID, lt, removeReciprocal)
}

// Search runs a ranked text query.
func (s *Service) Search(query string, opts search.Options) ([]search.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search.Search(query, opts)
}

// NotesByTag returns notes carrying any of the given tags.
func (s *Service) NotesByTag(tags ...string) ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search.ByTag(tags...)
}

// LinkedNotes returns the notes connected to id in the given direction,
// paired with the connecting edges.
type LinkedNote struct {
	Note *models.Note `json:"note"`
	Link models.Link  `json:"link"`
}

// LinkedNotes lists neighbors of a note.
func (s *Service) LinkedNotes(id string, dir models.Direction) ([]LinkedNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.repo.Exists(id) {
		return nil, &apperr.NotFound{ID: id}
	}
	links, err := s.db.Links(id, dir)
	if err != nil {
		return nil, err
	}

	out := make([]LinkedNote, 0, len(links))
	for _, l := range links {
		neighborID := l.TargetID
		if neighborID == id {
			neighborID = l.SourceID
		}
		rec, err := s.db.GetNote(neighborID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue // dangling edge, rebuild will drop it
		}
		out = append(out, LinkedNote{Note: rec.Note(), Link: l})
	}
	return out, nil
}

// Similar delegates to analytics.
func (s *Service) Similar(id string, threshold float64, limit int) ([]analytics.SimilarNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics.Similar(id, threshold, limit)
}

// Central delegates to analytics.
func (s *Service) Central(limit int) ([]analytics.CentralNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics.Central(limit)
}

// Orphans delegates to analytics.
func (s *Service) Orphans() ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics.Orphans()
}

// ParseStartTime parses the start-date form the listing transports accept:
// a plain ISO date ("2006-01-02", midnight UTC) or a full RFC 3339
// timestamp.
func ParseStartTime(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &apperr.Validation{Field: "start_date", Reason: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

// NotesByDate lists notes created (or updated, with useUpdated) on or after
// start, newest first.
func (s *Service) NotesByDate(start time.Time, useUpdated bool, limit int) ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.db.AllNotes()
	if err != nil {
		return nil, err
	}
	var out []*models.Note
	for i := range records {
		ts := records[i].CreatedAt
		if useUpdated {
			ts = records[i].UpdatedAt
		}
		if ts.Before(start) {
			continue
		}
		out = append(out, records[i].Note())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ta, tb := a.CreatedAt, b.CreatedAt
		if useUpdated {
			ta, tb = a.UpdatedAt, b.UpdatedAt
		}
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AllNotes returns every note with its outgoing links attached, ordered by
// id. Serves the graph API.
func (s *Service) AllNotes() ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allNotes()
}

func (s *Service) allNotes() ([]*models.Note, error) {
	records, err := s.db.AllNotes()
	if err != nil {
		return nil, err
	}
	links, err := s.db.AllLinks()
	if err != nil {
		return nil, err
	}
	bySource := make(map[string][]models.Link)
	for _, l := range links {
		bySource[l.SourceID] = append(bySource[l.SourceID], l)
	}

	out := make([]*models.Note, 0, len(records))
	for i := range records {
		n := records[i].Note()
		n.Links = bySource[n.ID]
		out = append(out, n)
	}
	return out, nil
}

// Snapshot runs fn with every note (outgoing links attached) and the tag
// counts, holding the shared lock for fn's whole duration. Writers wait;
// other readers proceed. Long read operations like export use this so the
// notes they render and the tag listing agree.
func (s *Service) Snapshot(fn func(notes []*models.Note, tags map[string]int) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes, err := s.allNotes()
	if err != nil {
		return err
	}
	tags, err := s.db.AllTags()
	if err != nil {
		return err
	}
	return fn(notes, tags)
}

// AllTags returns every tag with its note count.
func (s *Service) AllTags() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.AllTags()
}

// RebuildIndex re-derives the whole index from the file repository. Holds
// the write lock for the duration.
func (s *Service) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return index.Rebuild(s.db, s.repo, s.logger)
}

// CheckFresh probes for drift between repository and index, returning an
// apperr.Drift (not fatal; rebuild repairs) when they disagree.
func (s *Service) CheckFresh() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale, err := index.Stale(s.db, s.repo)
	if err != nil {
		return err
	}
	if stale {
		return &apperr.Drift{Reason: "index does not match repository contents"}
	}
	return nil
}

// indexNote mirrors a note into the index after a successful file write.
// Failures here are drift, logged and left to rebuild; the file is the
// authoritative copy either way.
func (s *Service) indexNote(n *models.Note) {
	cs, err := s.repo.Checksum(n.ID)
	if err != nil {
		s.logger.Warn("index drift: checksum failed", slog.String("id", n.ID), slog.String("error", err.Error()))
		return
	}
	if err := s.db.UpsertNote(n, cs); err != nil {
		s.logger.Warn("index drift: note not indexed, rebuild will repair",
			slog.String("id", n.ID), slog.String("error", err.Error()))
	}
}

// normalizeTags lowercases, trims, and deduplicates while preserving first
// occurrence order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
