package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
)

func seed(t *testing.T, notes ...*models.Note) (*Analyzer, *index.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	for _, n := range notes {
		if err := db.UpsertNote(n, "cs-"+n.ID); err != nil {
			t.Fatal(err)
		}
	}
	return New(db), db
}

func note(id string, tags []string, links ...models.Link) *models.Note {
	ts := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return &models.Note{
		ID: id, Title: "Note " + id, Content: "body",
		Type: models.NotePermanent, Tags: tags, Links: links,
		CreatedAt: ts, UpdatedAt: ts,
	}
}

func edge(src, tgt string, lt models.LinkType) models.Link {
	return models.Link{SourceID: src, TargetID: tgt, Type: lt, CreatedAt: time.Now()}
}

func TestCentralOrderingAndTies(t *testing.T) {
	// hub -> a, hub -> b, a -> b. Degrees: hub 2, a 2, b 2... adjust:
	// hub -> a, hub -> b: hub 2, a 1, b 1. c unlinked.
	a, _ := seed(t,
		note("hub", nil, edge("hub", "a", models.LinkReference), edge("hub", "b", models.LinkReference)),
		note("a", nil),
		note("b", nil),
		note("c", nil),
	)

	central, err := a.Central(10)
	if err != nil {
		t.Fatalf("Central: %v", err)
	}
	if len(central) != 3 {
		t.Fatalf("central = %d entries", len(central))
	}
	if central[0].Note.ID != "hub" || central[0].Degree != 2 {
		t.Fatalf("top = %+v", central[0])
	}
	// Equal degree breaks by id.
	if central[1].Note.ID != "a" || central[2].Note.ID != "b" {
		t.Fatalf("tie order = %s, %s", central[1].Note.ID, central[2].Note.ID)
	}
}

func TestCentralLimit(t *testing.T) {
	a, _ := seed(t,
		note("x", nil, edge("x", "y", models.LinkReference)),
		note("y", nil),
	)
	central, err := a.Central(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(central) != 1 {
		t.Fatalf("central = %d, want 1", len(central))
	}
}

func TestSimilarJaccard(t *testing.T) {
	// a{x} vs b{x,y}: intersection 1, union 2 => 0.5.
	a, _ := seed(t,
		note("a", []string{"x"}),
		note("b", []string{"x", "y"}),
		note("unrelated", []string{"z"}),
	)

	similar, err := a.Similar("a", 0, 10)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(similar) != 1 {
		t.Fatalf("similar = %+v", similar)
	}
	if similar[0].Note.ID != "b" || math.Abs(similar[0].Score-0.5) > 1e-9 {
		t.Fatalf("got %s score %v, want b at 0.5", similar[0].Note.ID, similar[0].Score)
	}
}

func TestSimilarThresholdAndOrdering(t *testing.T) {
	// twin scores 1.0, half scores 1/3, empty has no tags and never matches.
	a, _ := seed(t,
		note("base", []string{"x", "y"}),
		note("twin", []string{"x", "y"}),
		note("half", []string{"x", "z"}),
		note("empty", nil),
	)

	similar, err := a.Similar("base", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(similar) != 2 || similar[0].Note.ID != "twin" || similar[1].Note.ID != "half" {
		t.Fatalf("similar = %+v", similar)
	}

	strict, err := a.Similar("base", 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(strict) != 1 || strict[0].Note.ID != "twin" {
		t.Fatalf("thresholded = %+v", strict)
	}
}

func TestSimilarUnknownNote(t *testing.T) {
	a, _ := seed(t)
	if _, err := a.Similar("missing", 0, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestOrphansTransition(t *testing.T) {
	an, db := seed(t,
		note("a", nil),
		note("b", nil),
	)

	orphans, err := an.Orphans()
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 2 {
		t.Fatalf("orphans = %d, want 2", len(orphans))
	}

	// Linking a to b removes both from the orphan set.
	linked := note("a", nil, edge("a", "b", models.LinkReference))
	if err := db.UpsertNote(linked, "cs-a2"); err != nil {
		t.Fatal(err)
	}

	orphans, err = an.Orphans()
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Fatalf("orphans after link = %+v", orphans)
	}
}
