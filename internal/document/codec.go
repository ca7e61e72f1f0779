package document

import (
	"encoding/json"
	"fmt"
)

// wireNode is the persisted shape of a node.
type wireNode struct {
	ID         string      `json:"id"`
	Type       Kind        `json:"type"`
	Tag        string      `json:"tag"`
	Content    string      `json:"content,omitempty"`
	HTML       string      `json:"html,omitempty"`
	ImagePath  string      `json:"imagePath,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type wireDocument struct {
	ID        string      `json:"id"`
	Prolog    string      `json:"prolog,omitempty"`
	HTMLAttrs []Attribute `json:"html_attrs,omitempty"`
	BodyAttrs []Attribute `json:"body_attrs,omitempty"`
	Head      string      `json:"head"`
	Nodes     []wireNode  `json:"nodes"`
}

func (d *Document) MarshalJSON() ([]byte, error) {
	w := wireDocument{
		ID:        d.ID,
		Prolog:    d.Prolog,
		HTMLAttrs: d.HTMLAttrs,
		BodyAttrs: d.BodyAttrs,
		Head:      d.Head,
		Nodes:     make([]wireNode, 0, len(d.Nodes)),
	}
	for _, n := range d.Nodes {
		switch v := n.(type) {
		case *TextNode:
			w.Nodes = append(w.Nodes, wireNode{ID: v.ID, Type: KindText, Tag: v.Tag, Content: v.Content, Attributes: v.Attributes})
		case *ImageNode:
			w.Nodes = append(w.Nodes, wireNode{ID: v.ID, Type: KindImage, Tag: v.Tag, HTML: v.HTML, ImagePath: v.ImagePath})
		case *IgnoredNode:
			w.Nodes = append(w.Nodes, wireNode{ID: v.ID, Type: KindIgnored, Tag: v.Tag, HTML: v.HTML})
		}
	}
	return json.Marshal(w)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	nodes := make([]Node, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		switch n.Type {
		case KindText:
			nodes = append(nodes, &TextNode{ID: n.ID, Tag: n.Tag, Content: n.Content, Attributes: n.Attributes})
		case KindImage:
			nodes = append(nodes, &ImageNode{ID: n.ID, Tag: n.Tag, HTML: n.HTML, ImagePath: n.ImagePath})
		case KindIgnored:
			nodes = append(nodes, &IgnoredNode{ID: n.ID, Tag: n.Tag, HTML: n.HTML})
		default:
			return fmt.Errorf("unknown node type %q for %s", n.Type, n.ID)
		}
	}

	*d = Document{
		ID:        w.ID,
		Prolog:    w.Prolog,
		HTMLAttrs: w.HTMLAttrs,
		BodyAttrs: w.BodyAttrs,
		Head:      w.Head,
		Nodes:     nodes,
	}
	return nil
}
