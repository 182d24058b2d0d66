package mcpserver

// NoteFormatContract describes the canonical note format that LLM
// consumers should follow when working with the knowledge base.
const NoteFormatContract = `# Ansuz Note Format Contract

Every note stored in Ansuz follows this structure on disk. Notes are
addressed by id, not by path: the id is a timestamp (YYYYMMDDHHMMSS)
plus a three-digit counter, generated by the server on creation.

## Structure

` + "```" + `markdown
---
id: "20250115093000001"            # generated, never choose your own
title: Human-readable title        # REQUIRED
type: permanent                     # fleeting | literature | permanent | structure | hub
tags:                               # OPTIONAL, lowercase
  - tag-one
  - tag-two
created: 2025-01-15T09:30:00Z       # managed by the server
updated: 2025-01-15T09:30:00Z       # managed by the server
---

Body text in standard Markdown.

## Links

- [reference] [[20250114120000001]] optional description
- [supports] [[20250113080000002]]
` + "```" + `

## Rules

1. **Never write note files directly.** Use ` + "`" + `zk_create_note` + "`" + ` and
   ` + "`" + `zk_update_note` + "`" + `; the server owns ids, timestamps and the on-disk layout.
2. **The ` + "`" + `## Links` + "`" + ` section is generated.** Manage relations with
   ` + "`" + `zk_create_link` + "`" + ` and ` + "`" + `zk_remove_link` + "`" + `, never by editing the body.
3. **Note types** carry meaning in the Zettelkasten method:
   - ` + "`" + `fleeting` + "`" + ` quick transient capture
   - ` + "`" + `literature` + "`" + ` notes on something you read
   - ` + "`" + `permanent` + "`" + ` a refined idea in your own words (the default)
   - ` + "`" + `structure` + "`" + ` an outline organizing other notes
   - ` + "`" + `hub` + "`" + ` an entry point into a topic area
4. **Link types** are directional. Creating with ` + "`" + `bidirectional` + "`" + ` set also
   writes the inverse on the target note: extends/extended_by,
   refines/refined_by, contradicts/contradicted_by, questions/questioned_by,
   supports/supported_by; reference and related are their own inverse.
5. **Tags** are lowercase; duplicates are removed, order is preserved.
6. **Titles** should be unique. ` + "`" + `zk_get_note` + "`" + ` falls back to exact-title
   lookup when the identifier is not a valid id.

## Good practice

- Keep one idea per permanent note and link it rather than growing it.
- Give links a short description when the relation is not obvious.
- Use ` + "`" + `zk_find_orphaned_notes` + "`" + ` periodically and connect what you find.
`
