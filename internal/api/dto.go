package api

import (
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/zettel"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title    string   `json:"title" example:"Atomic habits" validate:"required"`
	Content  string   `json:"content" example:"One idea per note." validate:"required"`
	NoteType string   `json:"note_type,omitempty" example:"permanent"`
	Tags     []string `json:"tags,omitempty" example:"habits,productivity"`
}

// UpdateNoteRequest is the request body for updating a note.
// Omitted fields keep their current value; tags, when present, replace
// the full tag set.
type UpdateNoteRequest struct {
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	NoteType *string  `json:"note_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// CreateLinkRequest is the request body for creating a link.
type CreateLinkRequest struct {
	SourceID          string `json:"source_id" validate:"required"`
	TargetID          string `json:"target_id" validate:"required"`
	LinkType          string `json:"link_type,omitempty" example:"supports"`
	Description       string `json:"description,omitempty"`
	Bidirectional     bool   `json:"bidirectional,omitempty"`
	BidirectionalType string `json:"bidirectional_type,omitempty"`
}

// RemoveLinkRequest is the request body for removing a link.
type RemoveLinkRequest struct {
	SourceID      string `json:"source_id" validate:"required"`
	TargetID      string `json:"target_id" validate:"required"`
	LinkType      string `json:"link_type,omitempty"`
	Bidirectional bool   `json:"bidirectional,omitempty"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []*models.Note `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Results []SearchResultDTO `json:"results" validate:"required"`
}

// SearchResultDTO is a single search hit in the API response.
type SearchResultDTO struct {
	Note         *models.Note `json:"note" validate:"required"`
	Score        float64      `json:"score" example:"2.4" validate:"required"`
	MatchedTerms []string     `json:"matched_terms,omitempty"`
	Context      string       `json:"context,omitempty"`
}

// LinkedNotesResponse wraps a note's neighborhood.
type LinkedNotesResponse struct {
	Notes []zettel.LinkedNote `json:"notes" validate:"required"`
}

// GraphNode is a node in the knowledge graph.
type GraphNode struct {
	ID    string `json:"id" example:"20250115093000001" validate:"required"`
	Title string `json:"title,omitempty" example:"Atomic habits"`
	Type  string `json:"type,omitempty" example:"permanent"`
}

// GraphLink is an edge in the knowledge graph.
type GraphLink struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Type   string `json:"type,omitempty" example:"supports"`
}

// GraphResponse wraps the knowledge graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}

// TagCount is one entry of the tag listing.
type TagCount struct {
	Name  string `json:"name" example:"habits" validate:"required"`
	Count int    `json:"count" example:"3" validate:"required"`
}
