package document

import "strings"

// ToPlainText flattens content to the text carried by its text nodes, joining
// sibling block contents with a single space. Used for search matching; on
// any failure it returns the raw input unchanged.
func ToPlainText(content string) (text string) {
	defer func() {
		if recover() != nil {
			text = content
		}
	}()
	doc := Parse(content)
	parts := make([]string, 0, len(doc.Content))
	for _, node := range doc.Content {
		if rendered := plainText(node); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	return strings.Join(parts, " ")
}

func plainText(node Node) string {
	if node.Type == NodeTypeText {
		return node.Text
	}
	parts := make([]string, 0, len(node.Content))
	for _, child := range node.Content {
		if rendered := plainText(child); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	return strings.Join(parts, " ")
}
