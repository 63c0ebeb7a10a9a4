// Package export renders notes into the two outbound formats: Markdown for
// file downloads and plain text for the Drive mirror.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"quill/internal/document"
	"quill/internal/notestore"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// ToMarkdown renders the note as a standalone Markdown document: title
// heading, optional tags line, then Summary, User Notes, and Transcript
// sections in that order, each present only when non-empty.
func ToMarkdown(note notestore.Note) string {
	var builder strings.Builder
	builder.WriteString("# ")
	builder.WriteString(title(note))
	builder.WriteString("\n")

	if len(note.Tags) > 0 {
		builder.WriteString("\nTags: ")
		builder.WriteString(strings.Join(note.Tags, ", "))
		builder.WriteString("\n")
	}

	writeMarkdownSection(&builder, "Summary", note.SummaryText)
	writeMarkdownSection(&builder, "User Notes", document.ToMarkdown(note.UserNotes))
	writeMarkdownSection(&builder, "Transcript", note.Transcript())

	return builder.String()
}

func writeMarkdownSection(builder *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	builder.WriteString("\n## ")
	builder.WriteString(heading)
	builder.WriteString("\n\n")
	builder.WriteString(body)
	builder.WriteString("\n")
}

// ToDriveText renders the note as the plain-text Drive mirror format: the
// title with an underline, a Created line, then SUMMARY, USER NOTES, and
// TRANSCRIPT sections with dashed underlines. HTML tags in user notes are
// stripped.
func ToDriveText(note notestore.Note) string {
	heading := title(note)

	var builder strings.Builder
	builder.WriteString(heading)
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("=", len(heading)))
	builder.WriteString("\n\n")

	created := time.Unix(note.CreatedAtSeconds, 0).UTC()
	fmt.Fprintf(&builder, "Created: %s\n", created.Format("2006-01-02"))

	writeDriveSection(&builder, "SUMMARY", note.SummaryText)
	writeDriveSection(&builder, "USER NOTES", StripHTML(document.ToPlainText(note.UserNotes)))
	writeDriveSection(&builder, "TRANSCRIPT", note.Transcript())

	return builder.String()
}

func writeDriveSection(builder *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	builder.WriteString("\n")
	builder.WriteString(heading)
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("-", len(heading)))
	builder.WriteString("\n")
	builder.WriteString(body)
	builder.WriteString("\n")
}

// StripHTML removes markup tags, leaving only the text between them.
func StripHTML(content string) string {
	return htmlTagPattern.ReplaceAllString(content, "")
}

func title(note notestore.Note) string {
	if trimmed := strings.TrimSpace(note.Title); trimmed != "" {
		return trimmed
	}
	return notestore.DefaultTitle
}
