// Package document flattens EPUB XHTML into an ordered list of typed nodes
// and rebuilds the markup after translation.
//
// Node identifiers are "{documentID}_{sequence}" (or "{documentID}_title"
// for the head title) and are the join key between the original structure
// and the translated payload.
package document

import (
	"fmt"
	"unicode/utf8"
)

type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindIgnored Kind = "ignored"
)

// Node is one of *TextNode, *ImageNode or *IgnoredNode.
type Node interface {
	NodeID() string
	Kind() Kind
	// TextLength is the translatable rune count; zero for non-text nodes.
	TextLength() int
	node()
}

type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TextNode is translatable content. An empty Tag means a bare text run
// directly inside a structural container.
type TextNode struct {
	ID         string
	Tag        string
	Content    string
	Attributes []Attribute
}

// ImageNode carries image-bearing markup verbatim plus the resolved path of
// the referenced image.
type ImageNode struct {
	ID        string
	Tag       string
	HTML      string
	ImagePath string
}

// IgnoredNode carries markup replayed verbatim: structural boundaries,
// atomic elements, whitespace, comments.
type IgnoredNode struct {
	ID   string
	Tag  string
	HTML string
}

func (n *TextNode) NodeID() string  { return n.ID }
func (n *TextNode) Kind() Kind      { return KindText }
func (n *TextNode) TextLength() int { return utf8.RuneCountInString(n.Content) }
func (n *TextNode) node()           {}

func (n *ImageNode) NodeID() string  { return n.ID }
func (n *ImageNode) Kind() Kind      { return KindImage }
func (n *ImageNode) TextLength() int { return 0 }
func (n *ImageNode) node()           {}

func (n *IgnoredNode) NodeID() string  { return n.ID }
func (n *IgnoredNode) Kind() Kind      { return KindIgnored }
func (n *IgnoredNode) TextLength() int { return 0 }
func (n *IgnoredNode) node()           {}

// Document is a flattened XHTML file.
type Document struct {
	ID string
	// Prolog is the raw source preceding the <html> element (XML
	// declaration, doctype).
	Prolog    string
	HTMLAttrs []Attribute
	BodyAttrs []Attribute
	// Head is the head markup without its <title>.
	Head  string
	Nodes []Node
}

func nodeID(docID string, seq int) string {
	return fmt.Sprintf("%s_%d", docID, seq)
}

func titleID(docID string) string {
	return docID + "_title"
}

// TextNodes returns the translatable nodes in document order.
func (d *Document) TextNodes() []*TextNode {
	var out []*TextNode
	for _, n := range d.Nodes {
		if t, ok := n.(*TextNode); ok {
			out = append(out, t)
		}
	}
	return out
}

// Title returns the head title node, or nil when the document has none.
func (d *Document) Title() *TextNode {
	id := titleID(d.ID)
	for _, n := range d.Nodes {
		if t, ok := n.(*TextNode); ok && t.ID == id {
			return t
		}
	}
	return nil
}

// WithTranslations returns a copy of the document in which each text node
// whose ID is present in translations carries the translated content.
// Nodes without a translation keep their original text.
func (d *Document) WithTranslations(translations map[string]string) *Document {
	out := *d
	out.Nodes = make([]Node, len(d.Nodes))
	for i, n := range d.Nodes {
		t, ok := n.(*TextNode)
		if !ok {
			out.Nodes[i] = n
			continue
		}
		copied := *t
		if tr, found := translations[t.ID]; found {
			copied.Content = tr
		}
		out.Nodes[i] = &copied
	}
	return &out
}
