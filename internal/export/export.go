// Package export renders the knowledge base to a directory of Markdown
// files for publishing. It is a pure read-only consumer of the query layer
// and never writes back into the repository or index.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/zettel"
)

// typeDirs maps note types to export subdirectories, in index page order.
var typeDirs = []struct {
	Type models.NoteType
	Dir  string
}{
	{models.NoteHub, "hub_notes"},
	{models.NoteStructure, "structure_notes"},
	{models.NotePermanent, "permanent_notes"},
	{models.NoteLiterature, "literature_notes"},
	{models.NoteFleeting, "fleeting_notes"},
}

func dirFor(nt models.NoteType) string {
	for _, td := range typeDirs {
		if td.Type == nt {
			return td.Dir
		}
	}
	return "other"
}

// Exporter writes the export tree.
type Exporter struct {
	svc *zettel.Service
}

// New creates an Exporter over the service's query interfaces.
func New(svc *zettel.Service) *Exporter {
	return &Exporter{svc: svc}
}

// Run exports every note into per-type subdirectories under dir, rewriting
// each link into a relative path valid from the source file's directory,
// and generates an index.md entry page. With clean set, existing directory
// contents are removed first. The whole run happens under one service
// snapshot, so the note files and the index page describe the same state
// even while writers are active.
func (e *Exporter) Run(dir string, clean bool) (string, error) {
	err := e.svc.Snapshot(func(notes []*models.Note, tags map[string]int) error {
		return render(dir, clean, notes, tags)
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

func render(dir string, clean bool, notes []*models.Note, tagCounts map[string]int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: mkdir: %w", err)
	}
	if clean {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("export: read dir: %w", err)
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("export: clean: %w", err)
			}
		}
	}

	byID := make(map[string]*models.Note, len(notes))
	filenames := make(map[string]string, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
		filenames[n.ID] = fmt.Sprintf("%s_%s.md", n.ID, sanitizeFilename(n.Title))
	}

	for _, n := range notes {
		sub := dirFor(n.Type)
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", sub, err)
		}
		body := renderNote(n, byID, filenames)
		path := filepath.Join(dir, sub, filenames[n.ID])
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("export: write %s: %w", path, err)
		}
	}

	idx := renderIndex(notes, tagCounts, filenames)
	if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte(idx), 0o644); err != nil {
		return fmt.Errorf("export: write index: %w", err)
	}
	return nil
}

// renderNote produces the export form of one note: frontmatter, titled
// body, and a links section pointing at exported neighbors via relative
// paths.
func renderNote(n *models.Note, byID map[string]*models.Note, filenames map[string]string) string {
	var b strings.Builder

	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", n.ID)
	fmt.Fprintf(&b, "title: %q\n", n.Title)
	fmt.Fprintf(&b, "type: %s\n", n.Type)
	tags := n.SortedTags()
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "created: %s\n", n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "updated: %s\n", n.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	b.WriteString("---\n\n")

	content := n.Content
	if !strings.HasPrefix(strings.TrimSpace(content), "# "+n.Title) {
		content = "# " + n.Title + "\n\n" + content
	}
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteString("\n")

	if len(n.Links) > 0 {
		b.WriteString("\n## Links\n")
		srcDir := dirFor(n.Type)

		byType := make(map[models.LinkType][]models.Link)
		var order []models.LinkType
		for _, l := range n.Links {
			if _, ok := byType[l.Type]; !ok {
				order = append(order, l.Type)
			}
			byType[l.Type] = append(byType[l.Type], l)
		}

		for _, lt := range order {
			fmt.Fprintf(&b, "\n### %s Links\n\n", capitalize(string(lt)))
			for _, l := range byType[lt] {
				target, ok := byID[l.TargetID]
				if !ok {
					continue // dangling target, nothing to point at
				}
				rel := filenames[l.TargetID]
				if tgtDir := dirFor(target.Type); tgtDir != srcDir {
					rel = "../" + tgtDir + "/" + rel
				}
				if l.Description != "" {
					fmt.Fprintf(&b, "- [%s](%s) - %s\n", target.Title, rel, l.Description)
				} else {
					fmt.Fprintf(&b, "- [%s](%s)\n", target.Title, rel)
				}
			}
		}
	}
	return b.String()
}

// renderIndex generates the entry page: hub and structure listings, a tag
// index, and corpus statistics.
func renderIndex(notes []*models.Note, tagCounts map[string]int, filenames map[string]string) string {
	var b strings.Builder
	b.WriteString("# Zettelkasten Knowledge Base\n\n")
	b.WriteString("This is an exported collection of knowledge from a Zettelkasten system.\n\n")

	section := func(nt models.NoteType, heading, blurb string) {
		var group []*models.Note
		for _, n := range notes {
			if n.Type == nt {
				group = append(group, n)
			}
		}
		if len(group) == 0 {
			return
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Title < group[j].Title })
		b.WriteString("## " + heading + "\n\n" + blurb + "\n\n")
		for _, n := range group {
			fmt.Fprintf(&b, "- [%s](%s/%s)\n", n.Title, dirFor(nt), filenames[n.ID])
		}
		b.WriteString("\n")
	}
	section(models.NoteHub, "Hub Notes",
		"Hub notes serve as entry points into the knowledge base for broad areas of interest.")
	section(models.NoteStructure, "Structure Notes",
		"Structure notes organize groups of notes on particular topics.")

	if len(tagCounts) > 0 {
		b.WriteString("## Browse by Tag\n\n")
		tags := make([]string, 0, len(tagCounts))
		for t := range tagCounts {
			tags = append(tags, t)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			var tagged []*models.Note
			for _, n := range notes {
				if n.HasTag(tag) {
					tagged = append(tagged, n)
				}
			}
			if len(tagged) == 0 {
				continue
			}
			sort.Slice(tagged, func(i, j int) bool { return tagged[i].Title < tagged[j].Title })
			fmt.Fprintf(&b, "### %s (%d)\n\n", tag, len(tagged))
			for _, n := range tagged {
				fmt.Fprintf(&b, "- [%s](%s/%s)\n", n.Title, dirFor(n.Type), filenames[n.ID])
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Total notes: %d\n", len(notes))
	for _, td := range typeDirs {
		count := 0
		for _, n := range notes {
			if n.Type == td.Type {
				count++
			}
		}
		fmt.Fprintf(&b, "- %s notes: %d\n", capitalize(string(td.Type)), count)
	}
	fmt.Fprintf(&b, "- Total tags: %d\n", len(tagCounts))
	return b.String()
}

var filenameStripRe = regexp.MustCompile(`[^\w\s.-]`)
var spaceRe = regexp.MustCompile(`\s+`)

// sanitizeFilename turns a title into a safe filename fragment.
func sanitizeFilename(title string) string {
	s := filenameStripRe.ReplaceAllString(title, "_")
	s = spaceRe.ReplaceAllString(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
