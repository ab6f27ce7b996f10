package docs

import "strings"

// defaultSeparators is the preference order for split points: paragraph
// breaks, line breaks, sentence breaks, spaces, then raw character runs.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts text into overlapping windows, preferring natural boundaries.
// It recursively descends the separator list: a piece still longer than the
// target after splitting on one separator is re-split on the next.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter with the given target chunk length and
// overlap in characters.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split returns the text cut into pieces of at most roughly chunkSize
// characters, consecutive pieces sharing up to overlap characters.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	// Pick the first separator present in the text; "" always matches.
	sep := ""
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = candidate
			rest = nil
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = cutEvery(text, s.chunkSize)
	} else {
		pieces = splitKeepSeparator(text, sep)
	}

	var out []string
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			out = append(out, s.mergePieces(pending)...)
			pending = nil
		}
	}

	for _, piece := range pieces {
		if len(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		flush()
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	flush()
	return out
}

// mergePieces packs consecutive small pieces into windows up to chunkSize,
// carrying a tail of up to overlap characters into the next window.
func (s *Splitter) mergePieces(pieces []string) []string {
	var chunks []string
	var window []string
	windowLen := 0

	for _, p := range pieces {
		if windowLen+len(p) > s.chunkSize && windowLen > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for windowLen > s.overlap && len(window) > 0 {
				windowLen -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		windowLen += len(p)
	}

	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping the separator attached to the
// preceding piece so no characters are lost when pieces are rejoined.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter may leave a trailing empty piece.
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cutEvery splits text into fixed-size character runs, the last resort when
// no separator applies.
func cutEvery(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
