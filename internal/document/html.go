package document

import (
	"fmt"
	"html"
	"strings"
)

// ToHTML renders content as HTML using standard block and mark semantics.
// On any rendering failure it degrades to a single paragraph with newlines
// converted to <br>; it never propagates an error to the caller.
func ToHTML(content string) (rendered string) {
	defer func() {
		if recover() != nil {
			rendered = fallbackHTML(content)
		}
	}()
	doc := Parse(content)
	var builder strings.Builder
	for _, node := range doc.Content {
		builder.WriteString(htmlBlock(node))
	}
	return builder.String()
}

func fallbackHTML(content string) string {
	escaped := html.EscapeString(content)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

func htmlBlock(node Node) string {
	switch node.Type {
	case NodeTypeParagraph:
		return "<p>" + htmlInline(node.Content) + "</p>"
	case NodeTypeHeading:
		level := clampHeadingLevel(node.Level)
		return fmt.Sprintf("<h%d>%s</h%d>", level, htmlInline(node.Content), level)
	case NodeTypeBulletList, NodeTypeTaskList:
		return "<ul>" + htmlListItems(node.Content) + "</ul>"
	case NodeTypeOrderedList:
		return "<ol>" + htmlListItems(node.Content) + "</ol>"
	case NodeTypeListItem, NodeTypeTaskItem:
		return "<li>" + htmlListItemBody(node.Content) + "</li>"
	case NodeTypeText:
		return htmlText(node)
	case NodeTypeHardBreak:
		return "<br>"
	default:
		var builder strings.Builder
		for _, child := range node.Content {
			builder.WriteString(htmlBlock(child))
		}
		return builder.String()
	}
}

func htmlListItems(items []Node) string {
	var builder strings.Builder
	for _, item := range items {
		builder.WriteString(htmlBlock(item))
	}
	return builder.String()
}

// htmlListItemBody unwraps the leading paragraph of a list item so simple
// items render as <li>text</li>, while nested lists keep their block tags.
func htmlListItemBody(children []Node) string {
	var builder strings.Builder
	for index, child := range children {
		if index == 0 && child.Type == NodeTypeParagraph {
			builder.WriteString(htmlInline(child.Content))
			continue
		}
		builder.WriteString(htmlBlock(child))
	}
	return builder.String()
}

func htmlInline(nodes []Node) string {
	var builder strings.Builder
	for _, node := range nodes {
		switch node.Type {
		case NodeTypeText:
			builder.WriteString(htmlText(node))
		case NodeTypeHardBreak:
			builder.WriteString("<br>")
		default:
			builder.WriteString(htmlInline(node.Content))
		}
	}
	return builder.String()
}

func htmlText(node Node) string {
	rendered := html.EscapeString(node.Text)
	for _, mark := range node.Marks {
		switch mark {
		case MarkTypeBold:
			rendered = "<strong>" + rendered + "</strong>"
		case MarkTypeItalic:
			rendered = "<em>" + rendered + "</em>"
		case MarkTypeUnderline:
			rendered = "<u>" + rendered + "</u>"
		case MarkTypeStrike:
			rendered = "<s>" + rendered + "</s>"
		case MarkTypeCode:
			rendered = "<code>" + rendered + "</code>"
		}
	}
	return rendered
}
