package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/models"
)

func TestDetect(t *testing.T) {
	kind, err := Detect("a.PDF", []byte("%PDF-1.7 ..."))
	require.NoError(t, err)
	assert.Equal(t, KindPDF, kind)

	_, err = Detect("a.pdf", []byte("<html>"))
	assert.ErrorIs(t, err, models.ErrInvalidUpload)

	kind, err = Detect("notes.md", []byte("# hi"))
	require.NoError(t, err)
	assert.Equal(t, KindMarkdown, kind)

	_, err = Detect("a.docx", []byte("PK"))
	assert.ErrorIs(t, err, models.ErrInvalidUpload)
}

func TestMarkdownSections(t *testing.T) {
	src := `# Handbook

Intro paragraph.

## Refunds

Refunds are issued within 14 days.

- item one
- item two

## Shipping

> Ships worldwide.
`
	frags := MarkdownSections([]byte(src))
	require.Len(t, frags, 3)
	assert.Equal(t, 1, frags[0].Page)
	assert.Contains(t, frags[0].Text, "Intro paragraph.")
	assert.Contains(t, frags[1].Text, "## Refunds")
	assert.Contains(t, frags[1].Text, "item two")
	assert.Equal(t, 3, frags[2].Page)
	assert.Contains(t, frags[2].Text, "Ships worldwide.")
}

func TestFragmentsEmptyIsUnparseable(t *testing.T) {
	_, err := Fragments("empty.md", []byte("   \n\n"))
	assert.ErrorIs(t, err, models.ErrUnparseableDocument)

	_, err = Fragments("broken.pdf", []byte("%PDF-garbage"))
	assert.ErrorIs(t, err, models.ErrUnparseableDocument)
}

func TestChunkerKeepsPagesAndIndexes(t *testing.T) {
	words := func(prefix string, n int) string {
		out := make([]string, n)
		for i := range out {
			out[i] = prefix
		}
		return strings.Join(out, " ")
	}
	frags := []Fragment{
		{Page: 1, Text: words("a", 10)},
		{Page: 2, Text: words("b", 3)},
	}

	pieces := Chunker{Size: 4, Overlap: 1}.Split(frags)
	// page 1: [0-4) [3-7) [6-10) ; page 2: [0-3)
	require.Len(t, pieces, 4)
	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, 1, pieces[2].Page)
	assert.Equal(t, 2, pieces[3].Page)
	assert.Equal(t, "b b b", pieces[3].Text)
	assert.Equal(t, 4, len(strings.Fields(pieces[0].Text)))
}

func TestChunkerIsDeterministic(t *testing.T) {
	frags := []Fragment{{Page: 1, Text: "one two three four five six seven"}}
	c := Chunker{Size: 3, Overlap: 1}
	assert.Equal(t, c.Split(frags), c.Split(frags))
}
