package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"recipechat/internal/domain"
)

// CharacterChunker splits text on a separator and greedily merges the pieces
// into chunks of at most chunkSize characters. Trailing pieces totalling no
// more than chunkOverlap characters are repeated at the start of the next
// chunk. A single piece longer than chunkSize becomes its own chunk.
type CharacterChunker struct {
	chunkSize    int
	chunkOverlap int
	separator    string
}

func NewCharacterChunker(chunkSize, chunkOverlap int, separator string) *CharacterChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	if separator == "" {
		separator = "\n\n"
	}
	return &CharacterChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap, separator: separator}
}

// Chunk splits each page separately so chunks keep their page number.
// Documents without pages are treated as one page.
func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	pages := document.Pages
	if len(pages) == 0 {
		pages = []string{document.Content}
	}
	var chunks []domain.Chunk
	for p, text := range pages {
		for _, piece := range c.Split(text) {
			chunks = append(chunks, newChunk(document, p+1, len(chunks), piece))
		}
	}
	return chunks, nil
}

// Split returns the chunk texts for a single block of text.
func (c *CharacterChunker) Split(text string) []string {
	var splits []string
	for _, s := range strings.Split(text, c.separator) {
		if s != "" {
			splits = append(splits, s)
		}
	}
	return c.merge(splits)
}

func (c *CharacterChunker) merge(splits []string) []string {
	sepLen := utf8.RuneCountInString(c.separator)
	var (
		out     []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		if total+n+joinLen() > c.chunkSize && len(current) > 0 {
			if doc := c.join(current); doc != "" {
				out = append(out, doc)
			}
			for total > c.chunkOverlap || (total > 0 && total+n+joinLen() > c.chunkSize) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, s)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := c.join(current); doc != "" {
		out = append(out, doc)
	}
	return out
}

func (c *CharacterChunker) join(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, c.separator))
}

func newChunk(document domain.Document, page, idx int, text string) domain.Chunk {
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Source:     document.Name,
		Page:       page,
		Text:       text,
		Index:      idx,
	}
}
