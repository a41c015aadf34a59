package ingest

import "unicode"

// ChunkerConfig bounds chunk sizes in characters (runes). Overlap carries
// trailing context from each chunk into the next; BoundaryLookback is how
// far back from the hard limit a natural break may be preferred.
type ChunkerConfig struct {
	MinChars         int
	MaxChars         int
	OverlapChars     int
	BoundaryLookback int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MinChars:         200,
		MaxChars:         1200,
		OverlapChars:     150,
		BoundaryLookback: 200,
	}
}

type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultChunkerConfig().MaxChars
	}
	if cfg.MinChars <= 0 || cfg.MinChars >= cfg.MaxChars {
		cfg.MinChars = cfg.MaxChars / 6
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = 0
	}
	if cfg.OverlapChars >= cfg.MaxChars-cfg.MinChars {
		cfg.OverlapChars = (cfg.MaxChars - cfg.MinChars) / 2
	}
	if cfg.BoundaryLookback <= 0 {
		cfg.BoundaryLookback = cfg.MaxChars / 6
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Config() ChunkerConfig { return c.cfg }

// Split cuts normalized text into ordered pieces. Identical text and config
// always produce identical boundaries: the scan is a pure function of both.
// Text no longer than MaxChars yields exactly one piece.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.cfg.MaxChars {
		return []string{text}
	}

	var out []string
	start := 0
	for start < n {
		end := start + c.cfg.MaxChars
		if end >= n {
			out = append(out, string(runes[start:n]))
			break
		}
		cut := c.boundary(runes, start, end)
		out = append(out, string(runes[start:cut]))

		next := cut - c.cfg.OverlapChars
		if next <= start {
			// Overlap must never stall the scan.
			next = cut
		}
		start = next
	}
	return out
}

// boundary finds the cut position in (limit, end], preferring paragraph
// breaks, then sentence ends, then line breaks, then spaces; a hard split at
// end is the last resort.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	limit := end - c.cfg.BoundaryLookback
	if min := start + c.cfg.MinChars; limit < min {
		limit = min
	}
	if limit >= end {
		return end
	}

	for i := end; i > limit; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > limit; i-- {
		r := runes[i-1]
		if (r == '.' || r == '!' || r == '?') && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > limit; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
