package mcpserver

// SourceFormatContract describes the Markdown export the catalogue is built
// from, for consumers that maintain the problem list.
const SourceFormatContract = `# Daily Problem Source Format

The catalogue is rebuilt from one Markdown document. Only three kinds of
lines matter; everything else is ignored.

## Date headings

` + "```" + `markdown
## October 3, 2025
` + "```" + `

- Any line starting with ` + "`" + `##` + "`" + ` (or more hashes) is a candidate.
- The text after the hashes must be at least 4 characters, contain a letter or
  digit, and must not start with an image embed.
- Emphasis markers (` + "`" + `*` + "`" + `, ` + "`" + `_` + "`" + `) and a closing run of hashes are
  stripped from the stored date; the length rule applies after stripping.
- A heading with no image before the next valid heading is dropped.

## Image embeds

` + "```" + `markdown
![][image12]
` + "```" + `

- The first embed after a date heading creates a problem. Problem ids count
  from 1 in document order.
- Embeds with no pending date are ignored.

## Image definitions

` + "```" + `markdown
[image12]: <data:image/png;base64,iVBORw0KGgo...>
` + "```" + `

- May appear anywhere in the document, usually appended at the end.
- A problem whose slot has no definition is still listed, without an image.
- When a slot is defined twice the later definition wins.

## Rotation

- Problems are shown in a fixed shuffled order, one per calendar day, cycling
  once every problem has been shown.
- Adding or removing problems changes the order for everyone; append new
  entries rather than reordering old ones.
- The catalogue is re-read at most once a week unless a refresh is requested.
`
