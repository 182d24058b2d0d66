// Package models defines the domain types for Ansuz.
package models

import (
	"fmt"
	"sort"
	"time"
)

// NoteType classifies a note's role in the zettelkasten.
type NoteType string

// Note types.
const (
	NoteFleeting   NoteType = "fleeting"   // quick, temporary notes
	NoteLiterature NoteType = "literature" // notes sourced from reading material
	NotePermanent  NoteType = "permanent"  // refined standalone ideas
	NoteStructure  NoteType = "structure"  // notes that organize a topic cluster
	NoteHub        NoteType = "hub"        // entry points into the knowledge base
)

// ParseNoteType validates a raw string against the closed note type set.
func ParseNoteType(s string) (NoteType, error) {
	switch NoteType(s) {
	case NoteFleeting, NoteLiterature, NotePermanent, NoteStructure, NoteHub:
		return NoteType(s), nil
	}
	return "", fmt.Errorf("unknown note type %q", s)
}

// LinkType classifies the semantic relation of a directed link.
type LinkType string

// Link types. Each has a fixed inverse; symmetric types invert to themselves.
const (
	LinkReference      LinkType = "reference"
	LinkRelated        LinkType = "related"
	LinkExtends        LinkType = "extends"
	LinkExtendedBy     LinkType = "extended_by"
	LinkRefines        LinkType = "refines"
	LinkRefinedBy      LinkType = "refined_by"
	LinkContradicts    LinkType = "contradicts"
	LinkContradictedBy LinkType = "contradicted_by"
	LinkQuestions      LinkType = "questions"
	LinkQuestionedBy   LinkType = "questioned_by"
	LinkSupports       LinkType = "supports"
	LinkSupportedBy    LinkType = "supported_by"
)

var inverseLinkType = map[LinkType]LinkType{
	LinkReference:      LinkReference,
	LinkRelated:        LinkRelated,
	LinkExtends:        LinkExtendedBy,
	LinkExtendedBy:     LinkExtends,
	LinkRefines:        LinkRefinedBy,
	LinkRefinedBy:      LinkRefines,
	LinkContradicts:    LinkContradictedBy,
	LinkContradictedBy: LinkContradicts,
	LinkQuestions:      LinkQuestionedBy,
	LinkQuestionedBy:   LinkQuestions,
	LinkSupports:       LinkSupportedBy,
	LinkSupportedBy:    LinkSupports,
}

// ParseLinkType validates a raw string against the closed link type set.
func ParseLinkType(s string) (LinkType, error) {
	if _, ok := inverseLinkType[LinkType(s)]; !ok {
		return "", fmt.Errorf("unknown link type %q", s)
	}
	return LinkType(s), nil
}

// Inverse returns the semantic inverse of t per the fixed table.
func (t LinkType) Inverse() LinkType {
	if inv, ok := inverseLinkType[t]; ok {
		return inv
	}
	return t
}

// Valid reports whether t belongs to the closed link type enumeration.
func (t LinkType) Valid() bool {
	_, ok := inverseLinkType[t]
	return ok
}

// Link is a directed edge between two notes, owned by its source note.
type Link struct {
	SourceID    string    `json:"source_id" yaml:"source_id"`
	TargetID    string    `json:"target_id" yaml:"target_id"`
	Type        LinkType  `json:"link_type" yaml:"link_type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Note is an atomic zettel. The file store owns the canonical copy;
// the index holds a derived one.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      NoteType  `json:"note_type"`
	Tags      []string  `json:"tags"`
	Links     []Link    `json:"links,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTag reports whether the note carries the given tag.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present. Returns true when added.
func (n *Note) AddTag(tag string) bool {
	if tag == "" || n.HasTag(tag) {
		return false
	}
	n.Tags = append(n.Tags, tag)
	return true
}

// AddLink appends a link to target unless an edge with the same target and
// type already exists. Returns true when added.
func (n *Note) AddLink(targetID string, lt LinkType, description string, at time.Time) bool {
	for _, l := range n.Links {
		if l.TargetID == targetID && l.Type == lt {
			return false
		}
	}
	n.Links = append(n.Links, Link{
		SourceID:    n.ID,
		TargetID:    targetID,
		Type:        lt,
		Description: description,
		CreatedAt:   at,
	})
	return true
}

// RemoveLink drops the edge to targetID of the given type.
// Returns true when an edge was removed.
func (n *Note) RemoveLink(targetID string, lt LinkType) bool {
	kept := n.Links[:0]
	removed := false
	for _, l := range n.Links {
		if l.TargetID == targetID && l.Type == lt {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	n.Links = kept
	return removed
}

// SortedTags returns the note's tags in lexicographic order without
// mutating the note. Used where deterministic rendering matters.
func (n *Note) SortedTags() []string {
	out := append([]string(nil), n.Tags...)
	sort.Strings(out)
	return out
}
