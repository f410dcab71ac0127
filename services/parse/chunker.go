package parse

import "strings"

// Piece is a chunk of text before it is bound to a document.
type Piece struct {
	Index int
	Page  int
	Text  string
}

// Chunker splits fragments into windows of Size words, consecutive windows sharing Overlap words.
// Windows never span fragments, so every piece keeps the page of its source.
type Chunker struct {
	Size    int
	Overlap int
}

func (c Chunker) Split(frags []Fragment) []Piece {
	size := c.Size
	if size <= 0 {
		size = 200
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var pieces []Piece
	for _, f := range frags {
		words := strings.Fields(f.Text)
		for start := 0; start < len(words); start += step {
			end := min(start+size, len(words))
			pieces = append(pieces, Piece{
				Index: len(pieces),
				Page:  f.Page,
				Text:  strings.Join(words[start:end], " "),
			})
			if end == len(words) {
				break
			}
		}
	}
	return pieces
}
