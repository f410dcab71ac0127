package parse

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown heading level to split sections (Level 2 => ##)
const headingLevelToSplit = 2

// MarkdownSections splits Markdown into one fragment per level-2 section.
// Markdown has no pages, so each section is numbered as its own page.
func MarkdownSections(content []byte) []Fragment {
	mdParser := goldmark.New()
	reader := text.NewReader(content)
	docAST := mdParser.Parser().Parse(reader)

	var frags []Fragment
	var section bytes.Buffer
	flush := func() {
		if s := strings.TrimSpace(section.String()); s != "" {
			frags = append(frags, Fragment{Page: len(frags) + 1, Text: s})
		}
		section.Reset()
	}

	for node := docAST.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			if heading.Level == headingLevelToSplit {
				flush()
			}
			section.WriteString(strings.Repeat("#", heading.Level))
			section.WriteString(" ")
		}
		blockText(node, reader.Source(), &section)
		section.WriteString("\n")
	}
	flush()
	return frags
}

// blockText writes the source lines of a block. Container blocks such as lists
// and blockquotes hold no lines themselves, so their children are visited instead.
func blockText(n ast.Node, src []byte, buf *bytes.Buffer) {
	if n.Type() != ast.TypeBlock {
		return
	}
	if lines := n.Lines(); lines.Len() > 0 {
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		buf.WriteString("\n")
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		blockText(c, src, buf)
	}
}
