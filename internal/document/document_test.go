package document

import (
	"strings"
	"testing"
)

func TestIsStructured(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{name: "doc-root", content: `{"type":"doc","content":[]}`, want: true},
		{name: "doc-root-with-whitespace", content: "  {\"type\":\"doc\"}  ", want: true},
		{name: "wrong-root-type", content: `{"type":"paragraph"}`, want: false},
		{name: "plain-text", content: "shopping list", want: false},
		{name: "broken-json", content: `{"type":"doc"`, want: false},
		{name: "json-array", content: `[1,2,3]`, want: false},
		{name: "empty", content: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStructured(tt.content); got != tt.want {
				t.Fatalf("IsStructured(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestFromPlainTextSplitsLines(t *testing.T) {
	doc := FromPlainText("first\n\nthird")
	if len(doc.Content) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(doc.Content))
	}
	if doc.Content[0].Content[0].Text != "first" {
		t.Fatalf("unexpected first paragraph: %#v", doc.Content[0])
	}
	if len(doc.Content[1].Content) != 0 {
		t.Fatalf("blank line should produce empty paragraph")
	}
	if doc.Content[2].Content[0].Text != "third" {
		t.Fatalf("unexpected third paragraph: %#v", doc.Content[2])
	}
}

func TestFromPlainTextEmptyInputNormalizes(t *testing.T) {
	doc := FromPlainText("")
	if len(doc.Content) != 1 || doc.Content[0].Type != NodeTypeParagraph {
		t.Fatalf("empty input should normalize to one empty paragraph, got %#v", doc.Content)
	}
}

func TestParseFallsBackToPlainText(t *testing.T) {
	doc := Parse("just a line")
	if len(doc.Content) != 1 || doc.Content[0].Type != NodeTypeParagraph {
		t.Fatalf("plain text should parse as paragraphs, got %#v", doc.Content)
	}
	if doc.Content[0].Content[0].Text != "just a line" {
		t.Fatalf("text lost during parse: %#v", doc.Content[0])
	}
}

func TestParseStructuredHeading(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Plan"}]}]}`
	doc := Parse(content)
	if len(doc.Content) != 1 {
		t.Fatalf("expected one block, got %d", len(doc.Content))
	}
	heading := doc.Content[0]
	if heading.Type != NodeTypeHeading || heading.Level != 2 {
		t.Fatalf("unexpected heading node: %#v", heading)
	}
}

func TestToMarkdownHeadingAndBulletList(t *testing.T) {
	content := `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Plan"}]},
		{"type":"bulletList","content":[
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"Buy milk"}]}]},
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"Call bob"}]}]}
		]}
	]}`
	want := "## Plan\n\n- Buy milk\n- Call bob"
	if got := ToMarkdown(content); got != want {
		t.Fatalf("ToMarkdown = %q, want %q", got, want)
	}
}

func TestToMarkdownOrderedListNumbering(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"orderedList","content":[
		{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"one"}]}]},
		{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"two"}]}]}
	]}]}`
	want := "1. one\n2. two"
	if got := ToMarkdown(content); got != want {
		t.Fatalf("ToMarkdown = %q, want %q", got, want)
	}
}

func TestToMarkdownNestedListIndents(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"bulletList","content":[
		{"type":"listItem","content":[
			{"type":"paragraph","content":[{"type":"text","text":"parent"}]},
			{"type":"bulletList","content":[
				{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"child"}]}]}
			]}
		]}
	]}]}`
	want := "- parent\n  - child"
	if got := ToMarkdown(content); got != want {
		t.Fatalf("ToMarkdown = %q, want %q", got, want)
	}
}

func TestToMarkdownMarksNestInOrder(t *testing.T) {
	tests := []struct {
		name  string
		marks string
		want  string
	}{
		{name: "bold", marks: `[{"type":"bold"}]`, want: "**note**"},
		{name: "bold-italic", marks: `[{"type":"bold"},{"type":"italic"}]`, want: "***note***"},
		{name: "underline", marks: `[{"type":"underline"}]`, want: "<u>note</u>"},
		{name: "strike-code", marks: `[{"type":"strike"},{"type":"code"}]`, want: "`~~note~~`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"note","marks":` + tt.marks + `}]}]}`
			if got := ToMarkdown(content); got != tt.want {
				t.Fatalf("ToMarkdown = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToMarkdownHardBreak(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"paragraph","content":[
		{"type":"text","text":"line one"},{"type":"hardBreak"},{"type":"text","text":"line two"}
	]}]}`
	want := "line one  \nline two"
	if got := ToMarkdown(content); got != want {
		t.Fatalf("ToMarkdown = %q, want %q", got, want)
	}
}

func TestUnknownNodePassesThroughChildren(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"callout","content":[
		{"type":"paragraph","content":[{"type":"text","text":"kept"}]}
	]}]}`
	if got := ToMarkdown(content); got != "kept" {
		t.Fatalf("unknown node should render its children, got %q", got)
	}
	if got := ToPlainText(content); got != "kept" {
		t.Fatalf("unknown node should flatten to its text, got %q", got)
	}
}

func TestToHTMLBlocksAndMarks(t *testing.T) {
	content := `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Title"}]},
		{"type":"paragraph","content":[{"type":"text","text":"bold","marks":[{"type":"bold"}]}]},
		{"type":"orderedList","content":[
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"step"}]}]}
		]}
	]}`
	want := "<h1>Title</h1><p><strong>bold</strong></p><ol><li>step</li></ol>"
	if got := ToHTML(content); got != want {
		t.Fatalf("ToHTML = %q, want %q", got, want)
	}
}

func TestToHTMLEscapesText(t *testing.T) {
	got := ToHTML("a < b & c")
	if !strings.Contains(got, "a &lt; b &amp; c") {
		t.Fatalf("text should be escaped, got %q", got)
	}
}

func TestToPlainTextJoinsBlocksWithSpace(t *testing.T) {
	content := `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"first"}]},
		{"type":"paragraph","content":[{"type":"text","text":"second"}]}
	]}`
	if got := ToPlainText(content); got != "first second" {
		t.Fatalf("ToPlainText = %q, want %q", got, "first second")
	}
}

func TestPlainTextRoundTripPreservesWords(t *testing.T) {
	input := "alpha beta\ngamma"
	if got := ToPlainText(input); got != "alpha beta gamma" {
		t.Fatalf("round trip lost words: %q", got)
	}
}

func TestConvertersNeverPanicOnMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"{",
		`{"type":"doc","content":"not-an-array"}`,
		`{"type":"doc","content":[{"type":"heading"}]}`,
		strings.Repeat("x", 1<<12),
	}
	for _, input := range inputs {
		if got := ToMarkdown(input); got == "" && input != "" {
			t.Fatalf("ToMarkdown(%.20q) returned empty fallback", input)
		}
		_ = ToHTML(input)
		_ = ToPlainText(input)
		_ = IsStructured(input)
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"heading","attrs":{"level":3},"content":[{"type":"text","text":"h","marks":[{"type":"italic"}]}]}]}`
	doc := Parse(content)
	encoded, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	reparsed := Parse(string(encoded))
	if len(reparsed.Content) != 1 || reparsed.Content[0].Level != 3 {
		t.Fatalf("round trip lost structure: %#v", reparsed.Content)
	}
	if reparsed.Content[0].Content[0].Marks[0] != MarkTypeItalic {
		t.Fatalf("round trip lost marks: %#v", reparsed.Content[0].Content[0])
	}
}
