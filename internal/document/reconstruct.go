package document

import (
	"html"
	"strings"
)

// LineBreak is the hard-break marker allowed to pass through text content
// unescaped.
const LineBreak = "<br/>"

var escapedLineBreaks = strings.NewReplacer(
	"&lt;br/&gt;", LineBreak,
	"&lt;br /&gt;", LineBreak,
	"&lt;br&gt;", LineBreak,
)

// Reconstruct renders the document back to XHTML. Text nodes are emitted as
// <tag attrs>escaped content</tag>; image and ignored nodes replay their
// stored markup verbatim. The title node goes into the head.
func Reconstruct(doc *Document) string {
	var b strings.Builder

	b.WriteString(doc.Prolog)
	b.WriteString(openTag("html", doc.HTMLAttrs))

	b.WriteString("<head>")
	b.WriteString(doc.Head)
	if title := doc.Title(); title != nil {
		b.WriteString("<title>")
		b.WriteString(html.EscapeString(title.Content))
		b.WriteString("</title>")
	}
	b.WriteString("</head>")

	b.WriteString(openTag("body", doc.BodyAttrs))
	tID := titleID(doc.ID)
	for _, n := range doc.Nodes {
		switch v := n.(type) {
		case *TextNode:
			if v.ID == tID {
				continue
			}
			writeText(&b, v)
		case *ImageNode:
			b.WriteString(v.HTML)
		case *IgnoredNode:
			b.WriteString(v.HTML)
		}
	}
	b.WriteString("</body></html>")

	return b.String()
}

func writeText(b *strings.Builder, n *TextNode) {
	content := escapeContent(n.Content)
	if n.Tag == "" {
		b.WriteString(content)
		return
	}
	b.WriteString(openTag(n.Tag, n.Attributes))
	b.WriteString(content)
	b.WriteString(closeTag(n.Tag))
}

func escapeContent(s string) string {
	return escapedLineBreaks.Replace(html.EscapeString(s))
}

func openTag(tag string, attrs []Attribute) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

func closeTag(tag string) string {
	return "</" + tag + ">"
}
