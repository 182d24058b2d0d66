package index

import "github.com/starford/ansuz/internal/models"

// NoteIndex is the query/mutation surface of the derived store. Consumers
// depend on this interface rather than the concrete *DB type to facilitate
// testing with mocks.
type NoteIndex interface {
	UpsertNote(n *models.Note, checksum string) error
	RemoveNote(id string) error
	UpsertLink(l models.Link) error
	RemoveLink(source, target string, lt models.LinkType) error

	GetNote(id string) (*NoteRecord, error)
	GetNoteByTitle(title string) (*NoteRecord, error)
	AllNotes() ([]NoteRecord, error)
	NotesByTag(tag string) ([]NoteRecord, error)
	NotesByText(term string) ([]NoteRecord, error)

	Links(noteID string, dir models.Direction) ([]models.Link, error)
	AllLinks() ([]models.Link, error)
	HasLink(source, target string, lt models.LinkType) (bool, error)

	Degrees() ([]DegreeRow, error)
	OrphanIDs() ([]string, error)
	AllTags() (map[string]int, error)

	Checksums() (map[string]string, error)
	Meta(key string) (string, error)
	SetMeta(key, value string) error
	Clear() error
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
