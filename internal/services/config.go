package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quickread/quickread-backend/internal/pkg/env"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

// DefaultFallbackQuestions is served whenever suggested-question generation
// fails; the list is configurable rather than hardwired into the handler.
var DefaultFallbackQuestions = []string{
	"What are the main points of this document?",
	"Can you explain the key findings?",
	"What are the conclusions?",
	"Are there any recommendations mentioned?",
}

type fallbackQuestionsFile struct {
	Questions []string `yaml:"questions"`
}

// LoadFallbackQuestions reads FALLBACK_QUESTIONS_PATH (YAML) when set,
// otherwise returns the default English list.
func LoadFallbackQuestions(log *logger.Logger) []string {
	path := strings.TrimSpace(os.Getenv("FALLBACK_QUESTIONS_PATH"))
	if path == "" {
		return DefaultFallbackQuestions
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("Could not read fallback questions file, using defaults", "path", path, "error", err)
		}
		return DefaultFallbackQuestions
	}

	var parsed fallbackQuestionsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil || len(parsed.Questions) == 0 {
		if log != nil {
			log.Warn("Could not parse fallback questions file, using defaults", "path", path, "error", err)
		}
		return DefaultFallbackQuestions
	}

	out := make([]string, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return DefaultFallbackQuestions
	}
	return out
}

// SynthesizerConfig bounds prompt assembly for the generation model.
type SynthesizerConfig struct {
	// MaxContextChars is the per-call input budget; PromptOverhead is
	// reserved for the instruction text around the content.
	MaxContextChars int
	PromptOverhead  int
	// MaxReduceRounds caps the iterative map-reduce so pathological inputs
	// terminate.
	MaxReduceRounds int
	// AskTopK is how many chunks ground a question.
	AskTopK int
	// SuggestExcerptChars bounds the excerpt sampled for question suggestions.
	SuggestExcerptChars int
	MaxQuestions        int
}

func SynthesizerConfigFromEnv(log *logger.Logger) SynthesizerConfig {
	cfg := SynthesizerConfig{
		MaxContextChars:     env.GetInt("GEN_MAX_CONTEXT_CHARS", 16000, log),
		PromptOverhead:      env.GetInt("GEN_PROMPT_OVERHEAD_CHARS", 2000, log),
		MaxReduceRounds:     env.GetInt("GEN_MAX_REDUCE_ROUNDS", 4, log),
		AskTopK:             env.GetInt("RETRIEVAL_TOP_K", 3, log),
		SuggestExcerptChars: env.GetInt("SUGGEST_EXCERPT_CHARS", 8000, log),
		MaxQuestions:        4,
	}
	return cfg.normalized()
}

func (c SynthesizerConfig) normalized() SynthesizerConfig {
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 16000
	}
	if c.PromptOverhead < 0 || c.PromptOverhead >= c.MaxContextChars {
		c.PromptOverhead = c.MaxContextChars / 8
	}
	if c.MaxReduceRounds <= 0 {
		c.MaxReduceRounds = 4
	}
	if c.AskTopK <= 0 {
		c.AskTopK = 3
	}
	if c.SuggestExcerptChars <= 0 {
		c.SuggestExcerptChars = 8000
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 4
	}
	return c
}

// windowBudget is the content budget of one generation window.
func (c SynthesizerConfig) windowBudget() int {
	b := c.MaxContextChars - c.PromptOverhead
	if b <= 0 {
		b = c.MaxContextChars
	}
	return b
}

// EmbeddingConfig bounds batching against the embedding model.
type EmbeddingConfig struct {
	BatchSize     int
	MaxChunkChars int
}

func EmbeddingConfigFromEnv(log *logger.Logger) EmbeddingConfig {
	cfg := EmbeddingConfig{
		BatchSize:     env.GetInt("EMBED_BATCH_SIZE", 20, log),
		MaxChunkChars: env.GetInt("EMBED_MAX_CHUNK_CHARS", 8000, log),
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 8000
	}
	return cfg
}

func (c EmbeddingConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}
	return nil
}
