// Package docs turns source documents into retrieval chunks: text extraction
// for the supported file types and separator-aware splitting with overlap.
package docs

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is a bounded-length slice of a source document's text, the unit of
// retrieval. Immutable once created; Score is transient, set at query time.
type Chunk struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	ID         string  `json:"id"`
	TokenCount int     `json:"token_count"`
	Score      float32 `json:"-"`
}

// minChunkChars is the default floor below which chunks are dropped.
const minChunkChars = 50

// ChunksFromText splits extracted text and wraps each piece as a Chunk.
// Pieces shorter than minChars (after trimming) are dropped. Chunk IDs are
// content-derived so rebuilds over identical input produce identical IDs.
func ChunksFromText(text, source string, splitter *Splitter, minChars int) []Chunk {
	if minChars <= 0 {
		minChars = minChunkChars
	}

	pieces := splitter.Split(text)

	var chunks []Chunk
	for i, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if len(piece) < minChars {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:       piece,
			Source:     source,
			ID:         chunkID(source, i, piece),
			TokenCount: estimateTokens(piece),
		})
	}
	return chunks
}

// chunkID derives a stable identifier from the source name, the chunk's
// position, and a prefix of its text.
func chunkID(source string, position int, text string) string {
	prefix := text
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", source, position, prefix)))
	return hex.EncodeToString(sum[:])
}

// estimateTokens approximates the token count without a tokenizer dependency.
// English text averages roughly four characters per token.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
