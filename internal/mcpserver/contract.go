package mcpserver

// AnnotationFormatContract describes how Sidenote stores annotations inside
// Markdown files, for LLM consumers that edit documents directly.
const AnnotationFormatContract = `# Sidenote Annotation Format

Annotations live in the Markdown file itself as HTML comments. Renderers
hide them, so the document still reads as plain Markdown.

## Marker

` + "```" + `
<!-- sidenote: {"id":"…","selection":"…","range":[8,13],"comment":"…","createdAt":"2025-01-20T10:00:00.000Z"} -->
` + "```" + `

- ` + "`" + `id` + "`" + ` is a UUID, unique within the file.
- ` + "`" + `selection` + "`" + ` is the literal annotated text.
- ` + "`" + `range` + "`" + ` is a [start, end) byte range into the document with every
  marker removed. It is a hint: when the text moves, the selection is looked
  up again and the occurrence nearest the old start wins.
- ` + "`" + `comment` + "`" + ` is free text and may be empty.
- ` + "`" + `createdAt` + "`" + ` is an ISO-8601 UTC timestamp with millisecond precision.

## Rules

1. Markers are appended at the end of the file, one per line, after the body.
2. Never edit marker JSON by hand; use the annotation tools so ids and ranges
   stay consistent.
3. A marker whose JSON cannot be parsed is ignored when reading and dropped on
   the next save.
4. Offsets passed to ` + "`" + `add_annotation` + "`" + ` refer to the ` + "`" + `base` + "`" + ` text returned by
   ` + "`" + `read_document` + "`" + `, not to the raw file.
5. Prefer annotating by ` + "`" + `selection` + "`" + ` (with ` + "`" + `occurrence` + "`" + ` when the text repeats)
   over raw offsets.

## Anchors

Each annotation resolves to one of:

- ` + "`" + `exact` + "`" + `: the stored range still covers the selection.
- ` + "`" + `moved` + "`" + `: the selection was found elsewhere.
- ` + "`" + `orphaned` + "`" + `: the selection no longer occurs; the comment is kept.
`
