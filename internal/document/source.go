package document

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// srcNode is one item of the source as written: an element with its
// children, or a raw text, comment, doctype or stray end-tag run. Start and
// end are byte offsets into the source, so src[start:end] is the element's
// exact markup.
type srcNode struct {
	element  bool
	tag      string
	attrs    []html.Attribute
	text     string // unescaped text of a text run
	open     string // raw start tag, or the raw token of a non-element
	close    string // raw end tag; empty when self-closing or implicitly closed
	start    int
	end      int
	parent   *srcNode
	children []*srcNode
}

// parseSource builds a tree straight from the tokenizer. Unlike html.Parse
// it never inserts elements (tbody, html, head) or re-serializes tags: every
// node remembers the bytes it came from. End tags close the nearest open
// element with the same name; stray end tags are kept as raw runs.
func parseSource(src string) (*srcNode, error) {
	root := &srcNode{element: true}
	cur := root
	z := html.NewTokenizer(strings.NewReader(src))
	pos := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize at byte %d: %w", pos, err)
			}
			break
		}
		raw := string(z.Raw())
		start := pos
		pos += len(raw)
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			el := &srcNode{element: true, tag: tok.Data, attrs: tok.Attr, open: raw, start: start, end: pos, parent: cur}
			cur.children = append(cur.children, el)
			if tt == html.StartTagToken && !voidTags[tok.Data] {
				cur = el
			}

		case html.EndTagToken:
			open := cur
			for open != root && open.tag != tok.Data {
				open = open.parent
			}
			if open == root {
				cur.children = append(cur.children, &srcNode{open: raw, start: start, end: pos, parent: cur})
				continue
			}
			for c := cur; c != open; c = c.parent {
				c.end = start
			}
			open.close = raw
			open.end = pos
			cur = open.parent

		default:
			cur.children = append(cur.children, &srcNode{text: tok.Data, open: raw, start: start, end: pos, parent: cur, tag: textTag(tt)})
		}
	}

	for c := cur; c != root; c = c.parent {
		c.end = pos
	}
	root.end = pos
	return root, nil
}

// textTag marks text runs so they can be told apart from comments.
func textTag(tt html.TokenType) string {
	if tt == html.TextToken {
		return "#text"
	}
	return ""
}

func (n *srcNode) isText() bool {
	return !n.element && n.tag == "#text"
}

func (n *srcNode) attr(key string) string {
	for _, a := range n.attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *srcNode, tag string) *srcNode {
	if n.element && n.tag == tag {
		return n
	}
	for _, c := range n.children {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
