package mcpserver

// NoteFormatContract describes the Markdown note format the kiln parser
// understands. LLM consumers should follow it when creating notes.
const NoteFormatContract = `# kiln Note Format

Notes are UTF-8 Markdown files with an optional YAML frontmatter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – defaults to the first heading
tags:                               # OPTIONAL – YAML list; "a/b" nests under "a"
  - area/topic
status: draft                       # any other key becomes a queryable property
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes by title or path stem.
Use [[target|alias]] for display text that differs from the target.
Inline #tags are collected alongside frontmatter tags.
` + "```" + `

## Rules

1. **Frontmatter fences** (` + "`" + `---` + "`" + `) must be the first line of the file.
2. **Blocks.** Headings, paragraphs, lists, code fences and quotes each become one
   content block. Editing a paragraph changes only that block's hash.
3. **Tags** are lowercase, kebab-case, with ` + "`" + `/` + "`" + ` for hierarchy.
4. **Wikilinks** resolve to a note whose path, path stem or title matches the target.
   Unresolved links are kept and resolve once the target note exists.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Properties.** Scalar frontmatter values can be filtered in queries, e.g.
   ` + "`" + `MATCH (n) WHERE n.status = 'draft' RETURN n.path` + "`" + `.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
  - project-x
status: published
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

## Action items

- [[alice]] to review the [[design-doc]]
- Bob to update [[project-x/roadmap|the roadmap]]
` + "```" + `
`
