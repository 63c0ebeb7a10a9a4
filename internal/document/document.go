package document

import (
	"encoding/json"
	"strings"
)

// NodeType tags every node in the structured document tree.
type NodeType string

const (
	NodeTypeDoc         NodeType = "doc"
	NodeTypeParagraph   NodeType = "paragraph"
	NodeTypeHeading     NodeType = "heading"
	NodeTypeBulletList  NodeType = "bulletList"
	NodeTypeOrderedList NodeType = "orderedList"
	NodeTypeListItem    NodeType = "listItem"
	NodeTypeTaskList    NodeType = "taskList"
	NodeTypeTaskItem    NodeType = "taskItem"
	NodeTypeText        NodeType = "text"
	NodeTypeHardBreak   NodeType = "hardBreak"
)

// MarkType tags an inline formatting mark attached to a text node.
type MarkType string

const (
	MarkTypeBold      MarkType = "bold"
	MarkTypeItalic    MarkType = "italic"
	MarkTypeUnderline MarkType = "underline"
	MarkTypeStrike    MarkType = "strike"
	MarkTypeCode      MarkType = "code"
)

const (
	minHeadingLevel = 1
	maxHeadingLevel = 3
)

// Node is one vertex of the document tree. Node types outside the recognized
// set are carried verbatim and rendered by recursing into Content, so newer
// clients can introduce block types without breaking older readers.
type Node struct {
	Type    NodeType
	Level   int
	Text    string
	Marks   []MarkType
	Content []Node
}

// IsKnown reports whether the node carries one of the recognized types.
func (n Node) IsKnown() bool {
	switch n.Type {
	case NodeTypeDoc, NodeTypeParagraph, NodeTypeHeading, NodeTypeBulletList,
		NodeTypeOrderedList, NodeTypeListItem, NodeTypeTaskList,
		NodeTypeTaskItem, NodeTypeText, NodeTypeHardBreak:
		return true
	}
	return false
}

// Document is the root of a structured note body.
type Document struct {
	Content []Node
}

type wireMark struct {
	Type string `json:"type"`
}

type wireAttrs struct {
	Level int `json:"level"`
}

type wireNode struct {
	Type    string     `json:"type"`
	Attrs   *wireAttrs `json:"attrs,omitempty"`
	Text    string     `json:"text,omitempty"`
	Marks   []wireMark `json:"marks,omitempty"`
	Content []wireNode `json:"content,omitempty"`
}

// UnmarshalJSON decodes the wire representation used by the editor
// (type/attrs/text/marks/content objects).
func (n *Node) UnmarshalJSON(data []byte) error {
	var wire wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*n = nodeFromWire(wire)
	return nil
}

// MarshalJSON encodes the node back into the editor wire shape.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeToWire(n))
}

// UnmarshalJSON decodes a full document, requiring a "doc" root.
func (d *Document) UnmarshalJSON(data []byte) error {
	var wire wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	root := nodeFromWire(wire)
	d.Content = root.Content
	return nil
}

// MarshalJSON encodes the document with its "doc" root.
func (d Document) MarshalJSON() ([]byte, error) {
	root := Node{Type: NodeTypeDoc, Content: d.Content}
	return json.Marshal(nodeToWire(root))
}

func nodeFromWire(wire wireNode) Node {
	node := Node{
		Type: NodeType(wire.Type),
		Text: wire.Text,
	}
	if wire.Attrs != nil {
		node.Level = clampHeadingLevel(wire.Attrs.Level)
	}
	for _, mark := range wire.Marks {
		node.Marks = append(node.Marks, MarkType(mark.Type))
	}
	for _, child := range wire.Content {
		node.Content = append(node.Content, nodeFromWire(child))
	}
	return node
}

func nodeToWire(node Node) wireNode {
	wire := wireNode{
		Type: string(node.Type),
		Text: node.Text,
	}
	if node.Type == NodeTypeHeading {
		wire.Attrs = &wireAttrs{Level: clampHeadingLevel(node.Level)}
	}
	for _, mark := range node.Marks {
		wire.Marks = append(wire.Marks, wireMark{Type: string(mark)})
	}
	for _, child := range node.Content {
		wire.Content = append(wire.Content, nodeToWire(child))
	}
	return wire
}

func clampHeadingLevel(level int) int {
	if level < minHeadingLevel {
		return minHeadingLevel
	}
	if level > maxHeadingLevel {
		return maxHeadingLevel
	}
	return level
}

// IsStructured reports whether content parses as JSON whose root object is a
// "doc" node. Any parse failure or type mismatch yields false, never an error.
func IsStructured(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return false
	}
	return probe.Type == string(NodeTypeDoc)
}

// FromPlainText builds a document from freeform text, one paragraph per line.
// Blank lines become empty paragraphs; empty input normalizes to a single
// empty paragraph.
func FromPlainText(text string) Document {
	lines := strings.Split(text, "\n")
	doc := Document{Content: make([]Node, 0, len(lines))}
	for _, line := range lines {
		paragraph := Node{Type: NodeTypeParagraph}
		if line != "" {
			paragraph.Content = []Node{{Type: NodeTypeText, Text: line}}
		}
		doc.Content = append(doc.Content, paragraph)
	}
	if len(doc.Content) == 0 {
		doc.Content = []Node{{Type: NodeTypeParagraph}}
	}
	return doc
}

// Parse interprets content as a structured document when it has the document
// shape, falling back to a plain-text interpretation on any decode failure.
func Parse(content string) Document {
	if !IsStructured(content) {
		return FromPlainText(content)
	}
	var doc Document
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &doc); err != nil {
		return FromPlainText(content)
	}
	if len(doc.Content) == 0 {
		doc.Content = []Node{{Type: NodeTypeParagraph}}
	}
	return doc
}
