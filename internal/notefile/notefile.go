// Package notefile renders and parses the on-disk note format: a typed YAML
// frontmatter header, the Markdown body, and a generated "## Links" section.
//
// The links section is a view regenerated from the note's link rows on every
// save. Normal reads take link structure from the index; only an index
// rebuild parses the section back.
package notefile

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/models"
)

const (
	delim        = "---"
	linksHeading = "## Links"
)

var linkLineRe = regexp.MustCompile(`^- \[([a-z_]+)\] \[\[([0-9]+)\]\]\s*(.*)$`)

// header is the typed frontmatter schema. Unknown fields are rejected on
// parse rather than silently dropped.
type header struct {
	ID      string    `yaml:"id"`
	Title   string    `yaml:"title"`
	Type    string    `yaml:"type"`
	Tags    []string  `yaml:"tags"`
	Created time.Time `yaml:"created"`
	Updated time.Time `yaml:"updated"`
}

// Render serializes a note into its canonical file form. The output is
// deterministic for a given note, which rebuild idempotence relies on.
func Render(n *models.Note) ([]byte, error) {
	h := header{
		ID:      n.ID,
		Title:   n.Title,
		Type:    string(n.Type),
		Tags:    n.SortedTags(),
		Created: n.CreatedAt.UTC().Truncate(time.Second),
		Updated: n.UpdatedAt.UTC().Truncate(time.Second),
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}

	head, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("notefile: marshal header: %w", err)
	}

	var b bytes.Buffer
	b.WriteString(delim + "\n")
	b.Write(head)
	b.WriteString(delim + "\n\n")
	b.WriteString(strings.TrimRight(n.Content, "\n"))
	b.WriteString("\n")

	if len(n.Links) > 0 {
		b.WriteString("\n" + linksHeading + "\n\n")
		for _, l := range n.Links {
			if l.Description != "" {
				fmt.Fprintf(&b, "- [%s] [[%s]] %s\n", l.Type, l.TargetID, l.Description)
			} else {
				fmt.Fprintf(&b, "- [%s] [[%s]]\n", l.Type, l.TargetID)
			}
		}
	}
	return b.Bytes(), nil
}

// Parse reconstructs a note from its file form. Link rows found in the
// links section get the note's updated time as their creation time, keeping
// repeated rebuilds bit-identical.
func Parse(data []byte) (*models.Note, error) {
	h, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	if h.ID == "" {
		return nil, fmt.Errorf("notefile: missing id in header")
	}
	nt, err := models.ParseNoteType(h.Type)
	if err != nil {
		return nil, fmt.Errorf("notefile: %w", err)
	}

	content, links := splitLinksSection(body, h.ID, h.Updated)
	tags := h.Tags
	if tags == nil {
		tags = []string{}
	}

	return &models.Note{
		ID:        h.ID,
		Title:     h.Title,
		Content:   content,
		Type:      nt,
		Tags:      tags,
		Links:     links,
		CreatedAt: h.Created,
		UpdatedAt: h.Updated,
	}, nil
}

// splitFrontmatter separates the YAML header (between leading --- delimiters)
// from the body. Unknown header fields are an error.
func splitFrontmatter(data []byte) (*header, string, error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", fmt.Errorf("notefile: missing frontmatter")
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", fmt.Errorf("notefile: unterminated frontmatter")
	}

	var h header
	dec := yaml.NewDecoder(bytes.NewReader(rest[:idx]))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil {
		return nil, "", fmt.Errorf("notefile: parse header: %w", err)
	}

	body := string(rest[idx+1+len(delim):])
	return &h, strings.TrimLeft(body, "\n\r"), nil
}

// splitLinksSection splits the generated links section (if any) off the body
// and parses its entries. Lines that do not match the link format are
// ignored; a hand-edited section only contributes what still parses.
func splitLinksSection(body, sourceID string, at time.Time) (string, []models.Link) {
	idx := strings.LastIndex(body, "\n"+linksHeading)
	if idx < 0 {
		if strings.HasPrefix(body, linksHeading) {
			idx = 0
		} else {
			return strings.TrimRight(body, "\n"), nil
		}
	}

	content := strings.TrimRight(body[:idx], "\n")
	section := body[idx:]

	var links []models.Link
	for _, line := range strings.Split(section, "\n") {
		m := linkLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lt, err := models.ParseLinkType(m[1])
		if err != nil {
			continue
		}
		links = append(links, models.Link{
			SourceID:    sourceID,
			TargetID:    m[2],
			Type:        lt,
			Description: strings.TrimSpace(m[3]),
			CreatedAt:   at,
		})
	}
	return content, links
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a cosmetic filename fragment from a title. It never affects
// identity or lookup; slug collisions are harmless since the id is the key.
func Slug(title string) string {
	s := slugStripRe.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		s = "note"
	}
	return s
}
