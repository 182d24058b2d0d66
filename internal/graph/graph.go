// Package graph implements semantic link creation and removal, including
// inverse-type resolution for bidirectional pairs.
package graph

import (
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// Graph layers link semantics over the repository and index. Link rows are
// owned by their source note's file (write-through to the index), so every
// mutation rewrites the owning file first.
type Graph struct {
	repo   storage.Repository
	db     index.NoteIndex
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Graph.
func New(repo storage.Repository, db index.NoteIndex, logger *slog.Logger) *Graph {
	return &Graph{repo: repo, db: db, logger: logger, now: time.Now}
}

// CreateLink persists a directed edge from source to target. With
// bidirectional set, a reverse edge of the inverse type (or the explicit
// customInverse) is persisted too; the pair is one logical unit, and a
// failed reverse write rolls the forward write back so no asymmetric pair
// is ever left behind.
func (g *Graph) CreateLink(sourceID, targetID string, lt models.LinkType, description string,
	bidirectional bool, customInverse models.LinkType) (*models.Note, *models.Note, error) {

	if !lt.Valid() {
		return nil, nil, &apperr.Validation{Field: "link_type", Reason: "unknown link type " + string(lt)}
	}
	if bidirectional && customInverse != "" && !customInverse.Valid() {
		return nil, nil, &apperr.Validation{Field: "bidirectional_type", Reason: "unknown link type " + string(customInverse)}
	}
	if sourceID == targetID {
		return nil, nil, &apperr.Validation{Field: "target_id", Reason: "a note cannot link to itself"}
	}

	source, err := g.repo.Get(sourceID)
	if err != nil {
		return nil, nil, err
	}
	target, err := g.repo.Get(targetID)
	if err != nil {
		return nil, nil, err
	}

	now := g.now()
	forwardAdded := source.AddLink(targetID, lt, description, now)
	if forwardAdded {
		source.UpdatedAt = now
		if err := g.repo.Put(source); err != nil {
			return nil, nil, err
		}
	}

	if bidirectional {
		reverseType := customInverse
		if reverseType == "" {
			reverseType = lt.Inverse()
		}
		if target.AddLink(sourceID, reverseType, description, now) {
			target.UpdatedAt = now
			if err := g.repo.Put(target); err != nil {
				// Reverse write failed: compensate the forward write so the
				// pair stays symmetric.
				if forwardAdded {
					source.RemoveLink(targetID, lt)
					if rbErr := g.repo.Put(source); rbErr != nil {
						g.logger.Error("link rollback failed",
							slog.String("source", sourceID), slog.String("error", rbErr.Error()))
					}
				}
				return nil, nil, err
			}
		}
		g.syncIndex(target)
	}

	g.syncIndex(source)
	return source, target, nil
}

// RemoveLink deletes the directional edge source→target of the given type.
// With removeReciprocal set it also removes the target→source edge of the
// inverse type; a missing reciprocal is a valid state, not an error.
func (g *Graph) RemoveLink(sourceID, targetID string, lt models.LinkType, removeReciprocal bool) (*models.Note, error) {
	if !lt.Valid() {
		return nil, &apperr.Validation{Field: "link_type", Reason: "unknown link type " + string(lt)}
	}

	source, err := g.repo.Get(sourceID)
	if err != nil {
		return nil, err
	}

	if source.RemoveLink(targetID, lt) {
		source.UpdatedAt = g.now()
		if err := g.repo.Put(source); err != nil {
			return nil, err
		}
		g.syncIndex(source)
	}

	if removeReciprocal {
		target, err := g.repo.Get(targetID)
		if err == nil && target.RemoveLink(sourceID, lt.Inverse()) {
			target.UpdatedAt = g.now()
			if err := g.repo.Put(target); err != nil {
				return nil, err
			}
			g.syncIndex(target)
		}
	}
	return source, nil
}

// syncIndex mirrors a note's current link rows into the index. The file
// write already succeeded, so an index failure here is drift, not a reason
// to fail the call.
func (g *Graph) syncIndex(n *models.Note) {
	cs, err := g.repo.Checksum(n.ID)
	if err != nil {
		g.logger.Warn("index sync: checksum failed", slog.String("id", n.ID), slog.String("error", err.Error()))
		return
	}
	if err := g.db.UpsertNote(n, cs); err != nil {
		g.logger.Warn("index drift: link index write failed, rebuild will repair",
			slog.String("id", n.ID), slog.String("error", err.Error()))
	}
}
