package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// NoteRecord is the derived copy of a note held by the index. Body is kept
// so text queries never touch the file store.
type NoteRecord struct {
	ID        string
	Title     string
	Type      models.NoteType
	Tags      []string
	Body      string
	Checksum  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note converts the record back to a domain note (links not populated).
func (r *NoteRecord) Note() *models.Note {
	return &models.Note{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Body,
		Type:      r.Type,
		Tags:      r.Tags,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// UpsertNote inserts or replaces a note row and replaces all link rows owned
// by it, in one transaction. The note file is the source of both.
func (db *DB) UpsertNote(n *models.Note, cs string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(n.SortedTags())

	_, err = tx.Exec(`
		INSERT INTO notes (id, title, note_type, tags, body, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			note_type  = excluded.note_type,
			tags       = excluded.tags,
			body       = excluded.body,
			checksum   = excluded.checksum,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, n.ID, n.Title, string(n.Type), string(tagsJSON), n.Content, cs, n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, n.ID); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(n.Links) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO links (source, target, link_type, description, created_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range n.Links {
			if _, err := stmt.Exec(n.ID, l.TargetID, string(l.Type), l.Description, l.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// RemoveNote deletes a note row and every link edge touching it, in both
// directions. Other notes themselves are untouched.
func (db *DB) RemoveNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ? OR target = ?`, id, id); err != nil {
		return fmt.Errorf("index: remove links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: remove note: %w", err)
	}
	return tx.Commit()
}

// UpsertLink inserts a single link row.
func (db *DB) UpsertLink(l models.Link) error {
	_, err := db.conn.Exec(`
		INSERT INTO links (source, target, link_type, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, target, link_type) DO UPDATE SET
			description = excluded.description
	`, l.SourceID, l.TargetID, string(l.Type), l.Description, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert link: %w", err)
	}
	return nil
}

// RemoveLink deletes one directional edge.
func (db *DB) RemoveLink(source, target string, lt models.LinkType) error {
	_, err := db.conn.Exec(
		`DELETE FROM links WHERE source = ? AND target = ? AND link_type = ?`,
		source, target, string(lt))
	if err != nil {
		return fmt.Errorf("index: remove link: %w", err)
	}
	return nil
}

const noteCols = `id, title, note_type, tags, body, checksum, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (*NoteRecord, error) {
	var r NoteRecord
	var nt, tagsJSON string
	if err := row.Scan(&r.ID, &r.Title, &nt, &tagsJSON, &r.Body, &r.Checksum, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Type = models.NoteType(nt)
	if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
		r.Tags = nil
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return &r, nil
}

// GetNote returns the record for id, or nil when not indexed.
func (db *DB) GetNote(id string) (*NoteRecord, error) {
	row := db.conn.QueryRow(`SELECT `+noteCols+` FROM notes WHERE id = ?`, id)
	r, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return r, nil
}

// GetNoteByTitle returns the record with an exact title match, preferring
// the lowest id when titles collide.
func (db *DB) GetNoteByTitle(title string) (*NoteRecord, error) {
	row := db.conn.QueryRow(`SELECT `+noteCols+` FROM notes WHERE title = ? ORDER BY id LIMIT 1`, title)
	r, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note by title: %w", err)
	}
	return r, nil
}

func (db *DB) queryNotes(q string, args ...any) ([]NoteRecord, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRecord
	for rows.Next() {
		r, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AllNotes returns every indexed note ordered by id.
func (db *DB) AllNotes() ([]NoteRecord, error) {
	return db.queryNotes(`SELECT ` + noteCols + ` FROM notes ORDER BY id`)
}

// NotesByTag returns notes carrying the exact tag, ordered by id.
func (db *DB) NotesByTag(tag string) ([]NoteRecord, error) {
	pattern := `%"` + tag + `"%`
	return db.queryNotes(`SELECT `+noteCols+` FROM notes WHERE tags LIKE ? ORDER BY id`, pattern)
}

// NotesByText returns notes whose title or body contains term, ordered by
// id. This is a coarse prefilter; ranking happens in the search engine.
func (db *DB) NotesByText(term string) ([]NoteRecord, error) {
	like := "%" + term + "%"
	return db.queryNotes(`
		SELECT `+noteCols+` FROM notes
		WHERE title LIKE ? COLLATE NOCASE OR body LIKE ? COLLATE NOCASE
		ORDER BY id
	`, like, like)
}

func (db *DB) queryLinks(q string, args ...any) ([]models.Link, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		var lt string
		if err := rows.Scan(&l.SourceID, &l.TargetID, &lt, &l.Description, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Type = models.LinkType(lt)
		out = append(out, l)
	}
	return out, rows.Err()
}

const linkCols = `source, target, link_type, description, created_at`

// Links returns the edges touching a note in the requested direction,
// ordered deterministically.
func (db *DB) Links(noteID string, dir models.Direction) ([]models.Link, error) {
	switch dir {
	case models.DirOutgoing:
		return db.queryLinks(`SELECT `+linkCols+` FROM links WHERE source = ? ORDER BY target, link_type`, noteID)
	case models.DirIncoming:
		return db.queryLinks(`SELECT `+linkCols+` FROM links WHERE target = ? ORDER BY source, link_type`, noteID)
	default:
		return db.queryLinks(`
			SELECT `+linkCols+` FROM links WHERE source = ? OR target = ?
			ORDER BY source, target, link_type
		`, noteID, noteID)
	}
}

// AllLinks returns every edge, ordered deterministically.
func (db *DB) AllLinks() ([]models.Link, error) {
	return db.queryLinks(`SELECT ` + linkCols + ` FROM links ORDER BY source, target, link_type`)
}

// HasLink reports whether the exact directional edge exists.
func (db *DB) HasLink(source, target string, lt models.LinkType) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		`SELECT count(*) FROM links WHERE source = ? AND target = ? AND link_type = ?`,
		source, target, string(lt)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: has link: %w", err)
	}
	return n > 0, nil
}

// DegreeRow pairs a note id with its total edge count.
type DegreeRow struct {
	ID     string
	Degree int
}

// Degrees counts edges per note, both directions, excluding notes with no
// edges. Ranking and tie-breaks are the analytics layer's concern.
func (db *DB) Degrees() ([]DegreeRow, error) {
	rows, err := db.conn.Query(`
		WITH outgoing AS (
			SELECT source AS id, COUNT(*) AS n FROM links GROUP BY source
		),
		incoming AS (
			SELECT target AS id, COUNT(*) AS n FROM links GROUP BY target
		)
		SELECT notes.id, COALESCE(outgoing.n, 0) + COALESCE(incoming.n, 0) AS degree
		FROM notes
		LEFT JOIN outgoing ON notes.id = outgoing.id
		LEFT JOIN incoming ON notes.id = incoming.id
		WHERE COALESCE(outgoing.n, 0) + COALESCE(incoming.n, 0) > 0
		ORDER BY degree DESC, notes.id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: degrees: %w", err)
	}
	defer rows.Close()

	var out []DegreeRow
	for rows.Next() {
		var r DegreeRow
		if err := rows.Scan(&r.ID, &r.Degree); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OrphanIDs returns ids of notes with no incoming and no outgoing links,
// computed from current state.
func (db *DB) OrphanIDs() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT id FROM notes
		WHERE id NOT IN (SELECT source FROM links)
		  AND id NOT IN (SELECT target FROM links)
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: orphans: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllTags returns every distinct tag with its note count, ordered by tag.
func (db *DB) AllTags() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT tags FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var tagsJSON string
		if err := rows.Scan(&tagsJSON); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			out[t]++
		}
	}
	return out, rows.Err()
}

// Checksums returns the stored content digest of every indexed note.
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Meta reads a metadata value, empty when absent.
func (db *DB) Meta(key string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: meta: %w", err)
	}
	return v, nil
}

// SetMeta writes a metadata value.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("index: set meta: %w", err)
	}
	return nil
}

// Clear wipes all derived state. Used by rebuild.
func (db *DB) Clear() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM links`, `DELETE FROM notes`, `DELETE FROM meta`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("index: clear: %w", err)
		}
	}
	return tx.Commit()
}
