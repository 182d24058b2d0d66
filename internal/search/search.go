// Package search implements ranked text and tag queries over the index.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
)

// Scoring constants. Title matches outrank content matches; whole-phrase
// hits outrank individual terms.
const (
	phraseTitleScore   = 2.0
	termTitleScore     = 0.5
	phraseContentScore = 1.0
	termContentScore   = 0.2
	snippetRadius      = 40
)

// Options narrows and configures a search.
type Options struct {
	IncludeTitle   bool
	IncludeContent bool
	Tags           []string        // any-of filter, empty means no filter
	NoteType       models.NoteType // empty means no filter
	Limit          int             // <= 0 means unlimited
}

// DefaultOptions searches title and content without filters.
func DefaultOptions() Options {
	return Options{IncludeTitle: true, IncludeContent: true}
}

// Result is one ranked hit.
type Result struct {
	Note         *models.Note `json:"note"`
	Score        float64      `json:"score"`
	MatchedTerms []string     `json:"matched_terms,omitempty"`
	Context      string       `json:"context,omitempty"`
}

// Engine ranks notes against text queries using the derived index.
type Engine struct {
	db index.NoteIndex
}

// New creates an Engine.
func New(db index.NoteIndex) *Engine {
	return &Engine{db: db}
}

// Search returns ranked matches for query under opts. With an empty query
// the filters alone select notes, each scored 1.0. Ordering is
// deterministic: score descending, then updated_at descending, then id
// ascending.
func (e *Engine) Search(query string, opts Options) ([]Result, error) {
	records, err := e.db.AllNotes()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	terms := splitTerms(query)

	var results []Result
	for i := range records {
		rec := &records[i]
		if !matchesFilters(rec, opts) {
			continue
		}

		if query == "" {
			results = append(results, Result{Note: rec.Note(), Score: 1.0})
			continue
		}

		r := scoreRecord(rec, query, terms, opts)
		if r.Score > 0 {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Note.UpdatedAt.Equal(b.Note.UpdatedAt) {
			return a.Note.UpdatedAt.After(b.Note.UpdatedAt)
		}
		return a.Note.ID < b.Note.ID
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// ByTag returns all notes carrying any of the given tags, deduplicated,
// ordered by id.
func (e *Engine) ByTag(tags ...string) ([]*models.Note, error) {
	seen := make(map[string]struct{})
	var out []*models.Note
	for _, tag := range tags {
		records, err := e.db.NotesByTag(tag)
		if err != nil {
			return nil, err
		}
		for i := range records {
			if _, dup := seen[records[i].ID]; dup {
				continue
			}
			seen[records[i].ID] = struct{}{}
			out = append(out, records[i].Note())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesFilters(rec *index.NoteRecord, opts Options) bool {
	if opts.NoteType != "" && rec.Type != opts.NoteType {
		return false
	}
	if len(opts.Tags) > 0 {
		found := false
		for _, want := range opts.Tags {
			for _, have := range rec.Tags {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func scoreRecord(rec *index.NoteRecord, query string, terms []string, opts Options) Result {
	var score float64
	matched := make(map[string]struct{})
	var context string

	if opts.IncludeTitle && rec.Title != "" {
		titleLower := strings.ToLower(rec.Title)
		if strings.Contains(titleLower, query) {
			score += phraseTitleScore
			context = "Title: " + rec.Title
		}
		for _, term := range terms {
			if strings.Contains(titleLower, term) {
				score += termTitleScore
				matched[term] = struct{}{}
			}
		}
	}

	if opts.IncludeContent && rec.Body != "" {
		bodyLower := strings.ToLower(rec.Body)
		if strings.Contains(bodyLower, query) {
			score += phraseContentScore
			context = "Content: ..." + snippet(rec.Body, query) + "..."
		}
		for _, term := range terms {
			if strings.Contains(bodyLower, term) {
				score += termContentScore
				matched[term] = struct{}{}
			}
		}
	}

	matchedTerms := make([]string, 0, len(matched))
	for t := range matched {
		matchedTerms = append(matchedTerms, t)
	}
	sort.Strings(matchedTerms)

	return Result{
		Note:         rec.Note(),
		Score:        score,
		MatchedTerms: matchedTerms,
		Context:      context,
	}
}

// snippet extracts a bounded window of original-cased text around the
// first case-insensitive occurrence of match. Offsets and the window are
// measured in runes; a byte offset into the lowercased body would shift
// against the original wherever lowercasing changes byte lengths.
func snippet(body, match string) string {
	runes := []rune(body)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	target := []rune(match)

	idx := runeIndex(lower, target)
	if idx < 0 {
		// Lowercasing expanded a rune (e.g. U+0130); window from the top.
		idx, target = 0, nil
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(target) + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	return strings.ReplaceAll(string(runes[start:end]), "\n", " ")
}

func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		j := 0
		for j < len(needle) && haystack[i+j] == needle[j] {
			j++
		}
		if j == len(needle) {
			return i
		}
	}
	return -1
}

func splitTerms(query string) []string {
	if query == "" {
		return nil
	}
	fields := strings.Fields(query)
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
