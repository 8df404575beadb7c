package vector

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := SplitText("   ", 100, 10); got != nil {
			t.Errorf("SplitText() = %v, want nil", got)
		}
	})

	t.Run("short content stays whole", func(t *testing.T) {
		got := SplitText("a short paragraph", 100, 10)
		if len(got) != 1 || got[0] != "a short paragraph" {
			t.Errorf("SplitText() = %v", got)
		}
	})

	t.Run("long content is split with overlap", func(t *testing.T) {
		content := strings.Repeat("lorem ipsum dolor sit amet ", 100)
		chunks := SplitText(content, 200, 40)
		if len(chunks) < 2 {
			t.Fatalf("SplitText() returned %d chunks, want several", len(chunks))
		}
		for i, chunk := range chunks {
			if len([]rune(chunk)) > 200 {
				t.Errorf("chunk %d is %d runes, exceeds size", i, len([]rune(chunk)))
			}
			if chunk != strings.TrimSpace(chunk) {
				t.Errorf("chunk %d has surrounding whitespace", i)
			}
		}
		// every word of the input must appear in some chunk
		joined := strings.Join(chunks, " ")
		if !strings.Contains(joined, "lorem ipsum dolor sit amet") {
			t.Error("chunks lost content")
		}
	})

	t.Run("breaks on whitespace", func(t *testing.T) {
		content := strings.Repeat("word ", 200)
		for _, chunk := range SplitText(content, 100, 20) {
			for _, piece := range strings.Fields(chunk) {
				if piece != "word" {
					t.Fatalf("word split across chunks: %q", piece)
				}
			}
		}
	})

	t.Run("whitespace backoff loses no content", func(t *testing.T) {
		// a lone space just after the backoff floor pulls the cut well below
		// the chunk boundary; the runes after it must still land in a chunk
		content := strings.Repeat("a", 77) + " XY" + strings.Repeat("b", 198)
		joined := strings.Join(SplitText(content, 100, 20), " ")
		if !strings.Contains(joined, "XY") {
			t.Error("runes after the cut point appear in no chunk")
		}

		content = strings.Repeat("a", 1250) + " MARKER" + strings.Repeat("b", 2000)
		joined = strings.Join(SplitText(content, DefaultChunkSize, DefaultChunkOverlap), " ")
		if !strings.Contains(joined, "MARKER") {
			t.Error("runes after the cut point appear in no chunk at default size")
		}
	})

	t.Run("invalid overlap is ignored", func(t *testing.T) {
		content := strings.Repeat("x", 500)
		chunks := SplitText(content, 100, 100)
		if len(chunks) != 5 {
			t.Errorf("SplitText() returned %d chunks, want 5", len(chunks))
		}
	})
}
