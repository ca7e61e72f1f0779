package document

import (
	"encoding/json"
	"strings"
	"testing"
)

const chapterXHTML = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>Chapter One</title>
<link rel="stylesheet" href="../styles/main.css"/>
</head>
<body class="chapter">
<h1 id="c1">Chapter One</h1>
<p>It was a <em>dark</em> night.</p>
<p><img src="../images/map.png" alt="map"/></p>
<ul><li>First</li><li>Second</li></ul>
<p>漢<ruby>字<rt>かんじ</rt></ruby>です</p>
<p>Before<a id="x"/>after</p>
<hr/>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink"><image xlink:href="../images/cover.jpg"/></svg>
</body>
</html>
`

func mustFlatten(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := Flatten(markup, "ch1", "OEBPS/text/ch1.xhtml")
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	return doc
}

func textContents(doc *Document) []string {
	var out []string
	for _, n := range doc.TextNodes() {
		out = append(out, n.Content)
	}
	return out
}

func TestFlatten_TextNodes(t *testing.T) {
	doc := mustFlatten(t, chapterXHTML)

	want := []string{"Chapter One", "Chapter One", "It was a dark night.", "First", "Second", "漢字です", "Beforeafter"}
	got := textContents(doc)
	if len(got) != len(want) {
		t.Fatalf("text nodes = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("text node %d = %q, want %q", i, got[i], want[i])
		}
	}

	title := doc.Title()
	if title == nil || title.ID != "ch1_title" {
		t.Fatalf("expected title node ch1_title, got %+v", title)
	}
	if doc.Nodes[0] != Node(title) {
		t.Error("title node should be the first node")
	}
}

func TestFlatten_NodeKinds(t *testing.T) {
	doc := mustFlatten(t, chapterXHTML)

	var images []*ImageNode
	var sawHR, sawUL bool
	for _, n := range doc.Nodes {
		switch v := n.(type) {
		case *ImageNode:
			images = append(images, v)
			if v.HTML == "" {
				t.Errorf("image node %s has no markup", v.ID)
			}
		case *IgnoredNode:
			if v.Tag == "hr" {
				sawHR = true
			}
			if v.HTML == "<ul>" {
				sawUL = true
			}
		case *TextNode:
			if v.Content == "" {
				t.Errorf("text node %s has no content", v.ID)
			}
		}
	}

	if len(images) != 2 {
		t.Fatalf("expected 2 image nodes, got %d", len(images))
	}
	if images[0].ImagePath != "OEBPS/images/map.png" {
		t.Errorf("img path = %q", images[0].ImagePath)
	}
	if images[1].Tag != "svg" || images[1].ImagePath != "OEBPS/images/cover.jpg" {
		t.Errorf("svg image = %+v", images[1])
	}
	if !sawHR {
		t.Error("expected hr as ignored node")
	}
	if !sawUL {
		t.Error("expected <ul> boundary node")
	}
}

func TestFlatten_DeterministicIDs(t *testing.T) {
	a := mustFlatten(t, chapterXHTML)
	b := mustFlatten(t, chapterXHTML)

	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i].NodeID() != b.Nodes[i].NodeID() {
			t.Errorf("node %d: %s vs %s", i, a.Nodes[i].NodeID(), b.Nodes[i].NodeID())
		}
	}
	if a.Nodes[1].NodeID() != "ch1_0" {
		t.Errorf("first body node id = %s, want ch1_0", a.Nodes[1].NodeID())
	}
}

func TestFlattenReconstruct_Stable(t *testing.T) {
	first := mustFlatten(t, chapterXHTML)
	rebuilt := Reconstruct(first)

	if !strings.HasPrefix(rebuilt, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<!DOCTYPE html>\n<html") {
		t.Errorf("prolog not preserved: %q", rebuilt[:60])
	}

	second, err := Flatten(rebuilt, "ch1", "OEBPS/text/ch1.xhtml")
	if err != nil {
		t.Fatalf("second Flatten failed: %v", err)
	}

	if first.Head != second.Head {
		t.Errorf("head changed:\n%q\n%q", first.Head, second.Head)
	}
	if len(first.Nodes) != len(second.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(first.Nodes), len(second.Nodes))
	}
	for i := range first.Nodes {
		a, b := first.Nodes[i], second.Nodes[i]
		if a.Kind() != b.Kind() {
			t.Fatalf("node %d kind %s vs %s", i, a.Kind(), b.Kind())
		}
		switch av := a.(type) {
		case *TextNode:
			if av.Content != b.(*TextNode).Content {
				t.Errorf("node %d content %q vs %q", i, av.Content, b.(*TextNode).Content)
			}
		case *ImageNode:
			if av.HTML != b.(*ImageNode).HTML {
				t.Errorf("image %d markup %q vs %q", i, av.HTML, b.(*ImageNode).HTML)
			}
		case *IgnoredNode:
			if av.HTML != b.(*IgnoredNode).HTML {
				t.Errorf("ignored %d markup %q vs %q", i, av.HTML, b.(*IgnoredNode).HTML)
			}
		}
	}

	if again := Reconstruct(second); again != rebuilt {
		t.Error("second reconstruction differs from the first")
	}
}

func TestFlatten_ReplaysSourceMarkup(t *testing.T) {
	const markup = `<html><head><title>T</title></head><body>
<table class='grid'><tr><td>Cell</td></tr></table>
<p><img src='../images/b.png' alt='x'/></p>
<p>One<br />two</p>
<svg><image href="../images/c.png" /></svg>
</body></html>`
	doc := mustFlatten(t, markup)

	var replayed []string
	for _, n := range doc.Nodes {
		switch v := n.(type) {
		case *ImageNode:
			replayed = append(replayed, v.HTML)
		case *IgnoredNode:
			if v.Tag != "" {
				replayed = append(replayed, v.HTML)
			}
		}
	}

	want := []string{
		"<table class='grid'>", "<tr>", "<td>", "</td>", "</tr>", "</table>",
		"<p>", "<img src='../images/b.png' alt='x'/>", "</p>",
		"<p>", "<br />", "</p>",
		`<svg><image href="../images/c.png" /></svg>`,
	}
	if len(replayed) != len(want) {
		t.Fatalf("replayed markup = %q, want %q", replayed, want)
	}
	for i := range want {
		if replayed[i] != want[i] {
			t.Errorf("markup %d = %q, want %q", i, replayed[i], want[i])
		}
		if !strings.Contains(markup, want[i]) {
			t.Errorf("markup %d = %q is not a source substring", i, want[i])
		}
	}

	out := Reconstruct(doc)
	if strings.Contains(out, "<tbody>") {
		t.Errorf("reconstruction inserted tbody: %s", out)
	}
	if !strings.Contains(out, "<table class='grid'><tr><td>Cell</td></tr></table>") {
		t.Errorf("table not replayed as written: %s", out)
	}

	images := 0
	for _, n := range doc.Nodes {
		if img, ok := n.(*ImageNode); ok {
			images++
			if img.ImagePath == "" {
				t.Errorf("image %s has no path", img.ID)
			}
		}
	}
	if images != 2 {
		t.Errorf("expected 2 image nodes, got %d", images)
	}
}

func TestReconstruct_Translations(t *testing.T) {
	doc := mustFlatten(t, chapterXHTML)

	translated := doc.WithTranslations(map[string]string{
		"ch1_title": "제1장",
		"ch1_1":     "<제1장> & more",
		"ch1_3":     "어두운<br/>밤이었다.",
	})
	out := Reconstruct(translated)

	if !strings.Contains(out, "<title>제1장</title>") {
		t.Errorf("translated title missing: %s", out)
	}
	if !strings.Contains(out, `<h1 id="c1">&lt;제1장&gt; &amp; more</h1>`) {
		t.Errorf("escaped heading missing: %s", out)
	}
	if !strings.Contains(out, "<p>어두운<br/>밤이었다.</p>") {
		t.Errorf("line break marker should pass unescaped: %s", out)
	}
	if !strings.Contains(out, `<img src="../images/map.png" alt="map"/>`) {
		t.Errorf("image markup not preserved: %s", out)
	}

	if doc.Title().Content != "Chapter One" {
		t.Error("WithTranslations must not mutate the original document")
	}
}

func TestDocument_JSON(t *testing.T) {
	doc := mustFlatten(t, chapterXHTML)

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if Reconstruct(&decoded) != Reconstruct(doc) {
		t.Error("decoded document renders differently")
	}
}

func TestDocument_JSON_UnknownType(t *testing.T) {
	var d Document
	err := json.Unmarshal([]byte(`{"id":"x","nodes":[{"id":"x_0","type":"video"}]}`), &d)
	if err == nil {
		t.Error("expected error for unknown node type")
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		docPath string
		ref     string
		want    string
	}{
		{"OEBPS/text/ch1.xhtml", "../images/a.png", "OEBPS/images/a.png"},
		{"ch1.xhtml", "img/a.png", "img/a.png"},
		{"OEBPS/ch.xhtml", "http://example.com/a.png", "http://example.com/a.png"},
		{"a/b.xhtml", "c.png#frag", "a/c.png"},
		{"a.xhtml", "../../x.png", "x.png"},
		{"a/b.xhtml", "my%20pic.png", "a/my pic.png"},
		{"a/b.xhtml", "/root.png", "root.png"},
		{"a/b.xhtml", "", ""},
	}

	for _, tt := range tests {
		if got := ResolvePath(tt.docPath, tt.ref); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.docPath, tt.ref, got, tt.want)
		}
	}
}
