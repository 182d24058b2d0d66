package zettel

import (
	"fmt"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/search"
)

// Batch operations apply each item independently and are not atomic as a
// group: one item's failure never undoes or blocks the others. The call
// itself only fails on malformed input as a whole, never on item errors.

// NoteInput is one item of a batch create.
type NoteInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	NoteType string   `json:"note_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// BatchCreateNotes creates each note independently and reports per-item
// outcomes.
func (s *Service) BatchCreateNotes(items []NoteInput) models.BatchResult[*models.Note] {
	var out models.BatchResult[*models.Note]
	for i, in := range items {
		n, err := s.CreateNote(in.Title, in.Content, models.NoteType(in.NoteType), in.Tags)
		if err != nil {
			out.Append(models.BatchItemResult[*models.Note]{
				ItemID: fmt.Sprintf("item_%d", i),
				Error:  err.Error(),
			})
			continue
		}
		out.Append(models.BatchItemResult[*models.Note]{OK: true, ItemID: n.ID, Result: n})
	}
	return out
}

// NoteUpdateInput is one item of a batch update.
type NoteUpdateInput struct {
	NoteID   string   `json:"note_id"`
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	NoteType *string  `json:"note_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// BatchUpdateNotes updates each note independently.
func (s *Service) BatchUpdateNotes(items []NoteUpdateInput) models.BatchResult[*models.Note] {
	var out models.BatchResult[*models.Note]
	for _, in := range items {
		if in.NoteID == "" {
			out.Append(models.BatchItemResult[*models.Note]{ItemID: "unknown", Error: "note_id is required"})
			continue
		}
		req := UpdateRequest{Title: in.Title, Content: in.Content, Tags: in.Tags}
		if in.NoteType != nil {
			nt := models.NoteType(*in.NoteType)
			req.NoteType = &nt
		}
		n, err := s.UpdateNote(in.NoteID, req)
		if err != nil {
			out.Append(models.BatchItemResult[*models.Note]{ItemID: in.NoteID, Error: err.Error()})
			continue
		}
		out.Append(models.BatchItemResult[*models.Note]{OK: true, ItemID: in.NoteID, Result: n})
	}
	return out
}

// BatchDeleteNotes deletes each note independently.
func (s *Service) BatchDeleteNotes(ids []string) models.BatchResult[struct{}] {
	var out models.BatchResult[struct{}]
	for _, id := range ids {
		if err := s.DeleteNote(id); err != nil {
			out.Append(models.BatchItemResult[struct{}]{ItemID: id, Error: err.Error()})
			continue
		}
		out.Append(models.BatchItemResult[struct{}]{OK: true, ItemID: id})
	}
	return out
}

// LinkInput is one item of a batch link create.
type LinkInput struct {
	SourceID          string `json:"source_id"`
	TargetID          string `json:"target_id"`
	LinkType          string `json:"link_type,omitempty"`
	Description       string `json:"description,omitempty"`
	Bidirectional     bool   `json:"bidirectional,omitempty"`
	BidirectionalType string `json:"bidirectional_type,omitempty"`
}

// BatchCreateLinks creates each link independently.
func (s *Service) BatchCreateLinks(items []LinkInput) models.BatchResult[*models.Note] {
	var out models.BatchResult[*models.Note]
	for _, in := range items {
		itemID := fmt.Sprintf("%s-%s", orUnknown(in.SourceID), orUnknown(in.TargetID))
		if in.SourceID == "" || in.TargetID == "" {
			out.Append(models.BatchItemResult[*models.Note]{ItemID: itemID, Error: "source_id and target_id are required"})
			continue
		}
		lt := models.LinkType(in.LinkType)
		if lt == "" {
			lt = models.LinkReference
		}
		src, _, err := s.CreateLink(in.SourceID, in.TargetID, lt, in.Description,
			in.Bidirectional, models.LinkType(in.BidirectionalType))
		if err != nil {
			out.Append(models.BatchItemResult[*models.Note]{ItemID: itemID, Error: err.Error()})
			continue
		}
		out.Append(models.BatchItemResult[*models.Note]{OK: true, ItemID: itemID, Result: src})
	}
	return out
}

// BatchSearch runs each text query independently.
func (s *Service) BatchSearch(queries []string, opts search.Options) models.BatchResult[[]search.Result] {
	var out models.BatchResult[[]search.Result]
	for _, q := range queries {
		results, err := s.Search(q, opts)
		if err != nil {
			out.Append(models.BatchItemResult[[]search.Result]{ItemID: q, Error: err.Error()})
			continue
		}
		out.Append(models.BatchItemResult[[]search.Result]{OK: true, ItemID: q, Result: results})
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
