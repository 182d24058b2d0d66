package index

import (
	"log/slog"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/storage"
)

// metaRepoTree stores the aggregate repository digest at last full sync.
const metaRepoTree = "repo_tree"

// Rebuild wipes the index and re-derives it completely from the file
// repository: every note is reinserted along with the links parsed from its
// generated links section. The operation is idempotent; two rebuilds over an
// unchanged repository produce identical contents.
func Rebuild(db NoteIndex, repo storage.Repository, logger *slog.Logger) error {
	notes, err := repo.List()
	if err != nil {
		return err
	}
	sums, err := repo.Checksums()
	if err != nil {
		return err
	}

	if err := db.Clear(); err != nil {
		return err
	}

	present := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		present[n.ID] = struct{}{}
	}

	for _, n := range notes {
		// The rebuilt edge set references existing notes only: a links
		// line whose target has no file (deleted note, hand-edited id)
		// carries no edge.
		kept := n.Links[:0]
		for _, l := range n.Links {
			if _, ok := present[l.TargetID]; ok {
				kept = append(kept, l)
			}
		}
		n.Links = kept

		if err := db.UpsertNote(n, sums[n.ID]); err != nil {
			logger.Warn("rebuild: index failed",
				slog.String("id", n.ID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("rebuild: indexed", slog.String("id", n.ID))
	}

	if err := db.SetMeta(metaRepoTree, checksum.Tree(sums)); err != nil {
		return err
	}
	logger.Info("rebuild: complete", slog.Int("notes", len(notes)))
	return nil
}

// Stale reports whether the index no longer matches the repository, by
// comparing per-note digests on both sides. Write-through keeps the two in
// step, so any disagreement means an external edit or a dropped index write.
func Stale(db NoteIndex, repo storage.Repository) (bool, error) {
	indexed, err := db.Checksums()
	if err != nil {
		return true, err
	}
	sums, err := repo.Checksums()
	if err != nil {
		return true, err
	}
	return checksum.Tree(indexed) != checksum.Tree(sums), nil
}
