// Package lines turns narration text into the speakable lines a
// synthesized narration steps through.
package lines

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// Split breaks text on newlines, strips lightweight markdown from each
// line and drops lines that end up blank. Verses keep their own line even
// when the source would render them as one paragraph.
func Split(fullText string) []string {
	raw := strings.Split(strings.ReplaceAll(fullText, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if plain := Strip(line); plain != "" {
			out = append(out, plain)
		}
	}
	return out
}

// Strip renders one line of markdown as plain text.
func Strip(line string) string {
	src := []byte(strings.TrimSpace(line))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf strings.Builder
	walk(doc, src, &buf)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.CodeBlock, *ast.FencedCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
			buf.WriteByte(' ')
		}
		return

	case *ast.ThematicBreak:
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, source, buf)
	}
}
