package mcpserver

// NoteFormatContract describes how notes are addressed and written. LLM
// consumers read it before creating or updating notes.
const NoteFormatContract = `# gitnotes Note Format Contract

Notes live in a git repository. Every change is a commit.

## Addressing

- A note is addressed by its **virtual path**, e.g. ` + "`" + `work/meetings/standup` + "`" + `.
  Paths use forward slashes and carry **no** ` + "`" + `.md` + "`" + ` extension.
- Every note also has a five digit **id** (e.g. ` + "`" + `00042` + "`" + `). Tools accept either.
- Directories exist only as prefixes of note paths. A path cannot be both a note
  and a directory.

## Content

- Content is plain Markdown, UTF-8, ending with a newline.
- Fenced code blocks tagged ` + "`" + `python` + "`" + `, ` + "`" + `cpp` + "`" + ` or ` + "`" + `rust` + "`" + ` can be executed by the owner.
  A block fenced with ` + "`" + `output` + "`" + ` directly after a code block holds its output.
  Do not hand-edit output blocks.

## Tags

- Tags are stored in note metadata, not in the content.
- Tags are lowercase single words (e.g. ` + "`" + `golang` + "`" + `, ` + "`" + `meeting` + "`" + `).
- When no tags are given on creation, tags are suggested from the content.

## Updates

- ` + "`" + `read_note` + "`" + ` returns a checksum. Pass it to ` + "`" + `update_note` + "`" + ` so concurrent edits are
  detected instead of overwritten.

## Resources

- Upload images and documents with ` + "`" + `upload_resource` + "`" + `. It returns a
  ` + "`" + `markdownImage` + "`" + ` field ready to paste into the note body.
- Resources are stored under ` + "`" + `resources/` + "`" + ` in the repository.

## Example

` + "```" + `markdown
# Weekly standup 2025-01-20

Attendees: Alice, Bob.

![Whiteboard](../resources/standup-2025-01-20.jpg)

` + "```" + `python
print(6 * 7)
` + "```" + `
` + "```" + `output
42
` + "```" + `
` + "```" + `
`
