package ingest

import (
	"strings"
	"testing"
)

func TestSplit_EmptyText(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())
	if got := c.Split(""); got != nil {
		t.Fatalf("expected nil for empty text, got %d pieces", len(got))
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())
	text := strings.Repeat("a", DefaultChunkerConfig().MaxChars)
	got := c.Split(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != text {
		t.Fatalf("chunk does not round-trip the input")
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestSplit_RespectsMaxAndOverlap(t *testing.T) {
	cfg := DefaultChunkerConfig()
	c := NewChunker(cfg)
	text := strings.Repeat("Sentence number one is here. ", 300)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > cfg.MaxChars {
			t.Fatalf("chunk %d has %d runes, max is %d", i, n, cfg.MaxChars)
		}
	}
	// Each chunk after the first restarts OverlapChars before the previous
	// cut, so the tail of chunk i reappears at the head of chunk i+1.
	for i := 0; i < len(chunks)-1; i++ {
		tail := []rune(chunks[i])
		overlap := string(tail[len(tail)-cfg.OverlapChars:])
		if !strings.HasPrefix(chunks[i+1], overlap) {
			t.Fatalf("chunk %d does not start with the overlap of chunk %d", i+1, i)
		}
	}
}

func TestSplit_CoversWholeText(t *testing.T) {
	cfg := DefaultChunkerConfig()
	c := NewChunker(cfg)
	text := strings.Repeat("Paragraph one goes here.\n\nParagraph two follows it. ", 120)
	chunks := c.Split(text)

	// Strip each chunk's overlap prefix and the concatenation must equal
	// the original text exactly.
	var b strings.Builder
	pos := 0
	runes := []rune(text)
	for _, ch := range chunks {
		cr := []rune(ch)
		skip := 0
		if pos > 0 {
			skip = cfg.OverlapChars
			if skip > len(cr) {
				skip = len(cr)
			}
		}
		b.WriteString(string(cr[skip:]))
		pos += len(cr) - skip
	}
	if b.String() != string(runes) {
		t.Fatalf("reassembled text does not match the input")
	}
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	cfg := DefaultChunkerConfig()
	c := NewChunker(cfg)
	para := strings.Repeat("x", 1100)
	text := para + "\n\n" + para
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Fatalf("first chunk should cut at the paragraph break, ends with %q", chunks[0][len(chunks[0])-5:])
	}
}

func TestNewChunker_NormalizesInvalidConfig(t *testing.T) {
	c := NewChunker(ChunkerConfig{MaxChars: -1, MinChars: -5, OverlapChars: -3})
	cfg := c.Config()
	if cfg.MaxChars <= 0 || cfg.MinChars <= 0 || cfg.OverlapChars < 0 || cfg.BoundaryLookback <= 0 {
		t.Fatalf("config not normalized: %+v", cfg)
	}
	if cfg.MinChars >= cfg.MaxChars {
		t.Fatalf("min %d should be below max %d", cfg.MinChars, cfg.MaxChars)
	}
	if cfg.OverlapChars >= cfg.MaxChars-cfg.MinChars {
		t.Fatalf("overlap %d too large for min %d max %d", cfg.OverlapChars, cfg.MinChars, cfg.MaxChars)
	}
}
