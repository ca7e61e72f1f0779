package document

import (
	"fmt"
	"strings"
)

var (
	imageTags = set("img", "image", "svg")

	atomicTags = set("hr", "br")

	// verbatimTags are replayed untouched and never translated.
	verbatimTags = set("script", "style", "math", "video", "audio", "object", "iframe")

	structuralTags = set(
		"ul", "ol", "li", "dl", "dt", "dd", "menu",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption", "colgroup", "col",
		"nav", "blockquote", "figure", "figcaption",
	)

	blockTags = set(
		"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "pre",
		"section", "article", "header", "footer", "aside", "main",
		"address", "hgroup", "details", "summary", "center",
	)

	rubyAnnotationTags = set("rt", "rp")

	voidTags = set(
		"area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr",
	)
)

func set(tags ...string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// Flatten parses XHTML markup and returns its body as an ordered node list.
// docID prefixes every node ID; docPath is the document's path inside the
// container and is used to resolve image references.
//
// Image-bearing elements become image nodes, br/hr and verbatim elements
// become ignored nodes, structural containers are kept as open/close
// boundary nodes with their children flattened in between. Any other
// element that holds a blocking descendant is treated the same way;
// otherwise its whole subtree collapses into one text node whose content is
// its plain text without ruby annotations. The head title, when present,
// is the first node.
//
// Image and ignored nodes carry the source bytes of their markup, so they
// replay exactly as written.
func Flatten(markup, docID, docPath string) (*Document, error) {
	doc := &Document{ID: docID}

	root, err := parseSource(markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", docPath, err)
	}

	scope := root
	if htmlEl := findElement(root, "html"); htmlEl != nil {
		doc.Prolog = markup[:htmlEl.start]
		doc.HTMLAttrs = attributes(htmlEl)
		scope = htmlEl
	}

	if head := findElement(scope, "head"); head != nil {
		var b strings.Builder
		var title *srcNode
		for _, c := range head.children {
			if title == nil && c.element && c.tag == "title" {
				title = c
				continue
			}
			b.WriteString(markup[c.start:c.end])
		}
		doc.Head = b.String()
		if title != nil {
			doc.Nodes = append(doc.Nodes, &TextNode{
				ID:      titleID(docID),
				Tag:     "title",
				Content: plainText(title),
			})
		}
	}

	body := findElement(scope, "body")
	if body == nil {
		if scope != root {
			return doc, nil
		}
		// A bare fragment: everything is body content.
		body = root
	}
	doc.BodyAttrs = attributes(body)

	f := &flattener{doc: doc, src: markup, docPath: docPath}
	f.children(body)
	return doc, nil
}

type flattener struct {
	doc     *Document
	src     string
	docPath string
	seq     int
}

func (f *flattener) nextID() string {
	id := nodeID(f.doc.ID, f.seq)
	f.seq++
	return id
}

func (f *flattener) emit(n Node) {
	f.doc.Nodes = append(f.doc.Nodes, n)
}

func (f *flattener) ignored(tag, markup string) {
	f.emit(&IgnoredNode{ID: f.nextID(), Tag: tag, HTML: markup})
}

// source returns the exact markup of n.
func (f *flattener) source(n *srcNode) string {
	return f.src[n.start:n.end]
}

func (f *flattener) children(n *srcNode) {
	for _, c := range n.children {
		f.visit(c)
	}
}

func (f *flattener) visit(n *srcNode) {
	switch {
	case n.element:
		f.element(n)
	case n.isText() && strings.TrimSpace(n.text) != "":
		f.emit(&TextNode{ID: f.nextID(), Content: n.text})
	default:
		f.ignored("", n.open)
	}
}

func (f *flattener) element(n *srcNode) {
	tag := n.tag

	switch {
	case imageTags[tag]:
		f.emit(&ImageNode{
			ID:        f.nextID(),
			Tag:       tag,
			HTML:      f.source(n),
			ImagePath: ResolvePath(f.docPath, imageRef(n)),
		})
		return

	case atomicTags[tag], verbatimTags[tag]:
		f.ignored(tag, f.source(n))
		return

	case structuralTags[tag], hasBlockingDescendant(n):
		f.container(n)
		return
	}

	text := plainText(n)
	if strings.TrimSpace(text) == "" {
		f.ignored(tag, f.source(n))
		return
	}

	f.emit(&TextNode{
		ID:         f.nextID(),
		Tag:        tag,
		Content:    text,
		Attributes: attributes(n),
	})
}

// container keeps the element's own start and end tags as boundary nodes.
// An element closed implicitly or self-closed has no end boundary.
func (f *flattener) container(n *srcNode) {
	f.ignored(n.tag, n.open)
	f.children(n)
	if n.close != "" {
		f.ignored(n.tag, n.close)
	}
}

func blocking(tag string) bool {
	return imageTags[tag] || atomicTags[tag] || verbatimTags[tag] || structuralTags[tag] || blockTags[tag]
}

func hasBlockingDescendant(n *srcNode) bool {
	for _, c := range n.children {
		if !c.element {
			continue
		}
		if blocking(c.tag) || hasBlockingDescendant(c) {
			return true
		}
	}
	return false
}

// plainText concatenates the text of n's subtree, skipping rt/rp.
func plainText(n *srcNode) string {
	var b strings.Builder
	var walk func(*srcNode)
	walk = func(n *srcNode) {
		if n.isText() {
			b.WriteString(n.text)
			return
		}
		if n.element && rubyAnnotationTags[n.tag] {
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// imageRef returns the image reference of an image-bearing element. For an
// svg wrapper it is the first nested image's reference.
func imageRef(n *srcNode) string {
	switch n.tag {
	case "img":
		return n.attr("src")
	case "image":
		if ref := n.attr("xlink:href"); ref != "" {
			return ref
		}
		return n.attr("href")
	}
	for _, c := range n.children {
		if !c.element {
			continue
		}
		if ref := imageRef(c); ref != "" {
			return ref
		}
	}
	return ""
}

func attributes(n *srcNode) []Attribute {
	if len(n.attrs) == 0 {
		return nil
	}
	out := make([]Attribute, 0, len(n.attrs))
	for _, a := range n.attrs {
		out = append(out, Attribute{Name: a.Key, Value: a.Val})
	}
	return out
}
