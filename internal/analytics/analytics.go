// Package analytics computes graph measures over the index: degree
// centrality, tag similarity, and orphan detection.
package analytics

import (
	"sort"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
)

// CentralNote pairs a note with its total edge count.
type CentralNote struct {
	Note   *models.Note `json:"note"`
	Degree int          `json:"connections"`
}

// SimilarNote pairs a note with its similarity score in [0,1].
type SimilarNote struct {
	Note  *models.Note `json:"note"`
	Score float64      `json:"score"`
}

// Analyzer answers graph questions from current index state; nothing here
// is cached.
type Analyzer struct {
	db index.NoteIndex
}

// New creates an Analyzer.
func New(db index.NoteIndex) *Analyzer {
	return &Analyzer{db: db}
}

// Central ranks notes by degree: every edge touching the note counts once
// per endpoint, both directions. Ties break by id ascending. Notes without
// edges are excluded.
func (a *Analyzer) Central(limit int) ([]CentralNote, error) {
	rows, err := a.db.Degrees()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]CentralNote, 0, len(rows))
	for _, row := range rows {
		rec, err := a.db.GetNote(row.ID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		out = append(out, CentralNote{Note: rec.Note(), Degree: row.Degree})
	}
	return out, nil
}

// Similar scores every other note against the given one by tag-set overlap
// (Jaccard: intersection over union) and returns those at or above
// threshold, sorted by score descending then id ascending. A note is never
// compared with itself.
func (a *Analyzer) Similar(noteID string, threshold float64, limit int) ([]SimilarNote, error) {
	rec, err := a.db.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &apperr.NotFound{ID: noteID}
	}

	all, err := a.db.AllNotes()
	if err != nil {
		return nil, err
	}

	base := tagSet(rec.Tags)
	var out []SimilarNote
	for i := range all {
		other := &all[i]
		if other.ID == noteID {
			continue
		}
		score := jaccard(base, tagSet(other.Tags))
		if score >= threshold && score > 0 {
			out = append(out, SimilarNote{Note: other.Note(), Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Note.ID < out[j].Note.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Orphans returns notes with zero incoming and zero outgoing links, ordered
// by id.
func (a *Analyzer) Orphans() ([]*models.Note, error) {
	ids, err := a.db.OrphanIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Note, 0, len(ids))
	for _, id := range ids {
		rec, err := a.db.GetNote(id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec.Note())
		}
	}
	return out, nil
}

func tagSet(tags []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
