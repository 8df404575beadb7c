package vector

import "strings"

// Chunking defaults, in runes. Overlap carries context across chunk boundaries.
const (
	DefaultChunkSize    = 1600
	DefaultChunkOverlap = 200
)

// SplitText cuts content into fixed-size chunks with overlap. It prefers to
// break on whitespace near the boundary so words stay whole.
func SplitText(content string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= size {
		return []string{content}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		// back up to the nearest whitespace; give up after a quarter of the chunk
		cut := end
		for cut > start+size*3/4 && !isSpace(runes[cut-1]) {
			cut--
		}
		if cut == start+size*3/4 {
			cut = end
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		// the next chunk starts overlap runes before the actual cut, so
		// whitespace backoff never leaves runes out of every chunk
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
