package document

import (
	"fmt"
	"strings"
)

// ToMarkdown renders content as Markdown. Structured content is rendered
// block by block; anything that cannot be rendered comes back unchanged so
// the caller never loses data.
func ToMarkdown(content string) (markdown string) {
	defer func() {
		if recover() != nil {
			markdown = content
		}
	}()
	doc := Parse(content)
	parts := make([]string, 0, len(doc.Content))
	for _, node := range doc.Content {
		parts = append(parts, markdownBlock(node, 0))
	}
	return strings.Join(parts, "\n\n")
}

func markdownBlock(node Node, depth int) string {
	switch node.Type {
	case NodeTypeParagraph:
		return markdownInline(node.Content)
	case NodeTypeHeading:
		return strings.Repeat("#", clampHeadingLevel(node.Level)) + " " + markdownInline(node.Content)
	case NodeTypeBulletList, NodeTypeTaskList:
		return markdownList(node.Content, depth, func(int) string { return "- " })
	case NodeTypeOrderedList:
		return markdownList(node.Content, depth, func(index int) string {
			return fmt.Sprintf("%d. ", index+1)
		})
	case NodeTypeText:
		return markdownText(node)
	case NodeTypeHardBreak:
		return "  \n"
	default:
		// Unknown block: render the children it carries, drop the wrapper.
		parts := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			parts = append(parts, markdownBlock(child, depth))
		}
		return strings.Join(parts, "")
	}
}

func markdownList(items []Node, depth int, marker func(index int) string) string {
	lines := make([]string, 0, len(items))
	for index, item := range items {
		lines = append(lines, markdownListItem(item, depth, marker(index)))
	}
	return strings.Join(lines, "\n")
}

func markdownListItem(item Node, depth int, marker string) string {
	indent := strings.Repeat("  ", depth)
	inline := make([]string, 0, 1)
	nested := make([]string, 0)
	for _, child := range item.Content {
		switch child.Type {
		case NodeTypeBulletList, NodeTypeOrderedList, NodeTypeTaskList:
			nested = append(nested, markdownBlock(child, depth+1))
		default:
			inline = append(inline, markdownBlock(child, depth))
		}
	}
	line := indent + marker + strings.Join(inline, "")
	if len(nested) == 0 {
		return line
	}
	return line + "\n" + strings.Join(nested, "\n")
}

func markdownInline(nodes []Node) string {
	var builder strings.Builder
	for _, node := range nodes {
		switch node.Type {
		case NodeTypeText:
			builder.WriteString(markdownText(node))
		case NodeTypeHardBreak:
			builder.WriteString("  \n")
		default:
			builder.WriteString(markdownInline(node.Content))
		}
	}
	return builder.String()
}

// markdownText applies mark wrappers in the order the marks appear, so
// multiple marks nest (bold then italic yields ***text***-style wrapping).
func markdownText(node Node) string {
	rendered := node.Text
	for _, mark := range node.Marks {
		switch mark {
		case MarkTypeBold:
			rendered = "**" + rendered + "**"
		case MarkTypeItalic:
			rendered = "*" + rendered + "*"
		case MarkTypeUnderline:
			rendered = "<u>" + rendered + "</u>"
		case MarkTypeStrike:
			rendered = "~~" + rendered + "~~"
		case MarkTypeCode:
			rendered = "`" + rendered + "`"
		}
	}
	return rendered
}
