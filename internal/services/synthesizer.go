package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quickread/quickread-backend/internal/clients/openai"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

// AnswerResult is the outcome of one question against the active document.
type AnswerResult struct {
	Answer          string `json:"answer"`
	ChunkIndices    []int  `json:"chunk_indices,omitempty"`
	Lexical         bool   `json:"lexical,omitempty"`
	PartialCoverage bool   `json:"partial_coverage,omitempty"`
}

// SuggestResult carries suggested questions plus whether they came from the
// model or the configured fallback list.
type SuggestResult struct {
	Questions []string `json:"questions"`
	Fallback  bool     `json:"fallback,omitempty"`
}

type Synthesizer interface {
	Summarize(ctx context.Context, fileID string) (string, error)
	Ask(ctx context.Context, fileID, question string) (AnswerResult, error)
	SuggestQuestions(ctx context.Context, fileID string) (SuggestResult, error)
}

type synthesizer struct {
	log       *logger.Logger
	cfg       SynthesizerConfig
	chunks    repos.ChunkRepo
	model     openai.Client
	retriever Retriever
	fallback  []string
}

func NewSynthesizer(
	baseLog *logger.Logger,
	cfg SynthesizerConfig,
	chunkRepo repos.ChunkRepo,
	model openai.Client,
	retriever Retriever,
	fallbackQuestions []string,
) Synthesizer {
	if len(fallbackQuestions) == 0 {
		fallbackQuestions = DefaultFallbackQuestions
	}
	return &synthesizer{
		log:       baseLog.With("service", "Synthesizer"),
		cfg:       cfg.normalized(),
		chunks:    chunkRepo,
		model:     model,
		retriever: retriever,
		fallback:  fallbackQuestions,
	}
}

// Summarize produces a markdown summary of the full document. Documents
// larger than one generation window are summarized per window concurrently,
// then the partial summaries are merged; the merge repeats until the result
// fits a single window or the round cap is hit.
func (s *synthesizer) Summarize(ctx context.Context, fileID string) (string, error) {
	chunks, err := s.chunks.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", domain.NewError(domain.CodeDocumentNotFound, "document has no content")
	}

	pieces := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if ch != nil && ch.Content != "" {
			pieces = append(pieces, ch.Content)
		}
	}
	windows := packWindows(pieces, s.cfg.windowBudget())

	if len(windows) == 1 {
		out, err := s.model.GenerateText(ctx, summarizeSystemPrompt, fmt.Sprintf(summarizeUserPrompt, windows[0]))
		if err != nil {
			return "", domain.WrapError(domain.CodeGenerationUnavailable, "summary generation failed", err)
		}
		return strings.TrimSpace(out), nil
	}

	partials, failed := s.mapWindows(ctx, windows)
	if len(partials)-failed == 0 {
		return "", domain.NewError(domain.CodeGenerationUnavailable, "summary generation failed for every section")
	}

	merged := partials
	for round := 0; round < s.cfg.MaxReduceRounds && len(merged) > 1; round++ {
		next := packWindows(merged, s.cfg.windowBudget())
		if len(next) == len(merged) {
			// Windows are not shrinking; force a final merge of whatever fits.
			next = []string{truncateRunes(strings.Join(merged, "\n\n"), s.cfg.windowBudget())}
		}
		reduced := make([]string, 0, len(next))
		for _, w := range next {
			out, err := s.model.GenerateText(ctx, summarizeSystemPrompt, fmt.Sprintf(reduceUserPrompt, w))
			if err != nil {
				if len(next) == 1 {
					return "", domain.WrapError(domain.CodeGenerationUnavailable, "summary merge failed", err)
				}
				// Keep the unmerged text for the next round rather than
				// dropping the sections it covers.
				reduced = append(reduced, w)
				continue
			}
			reduced = append(reduced, strings.TrimSpace(out))
		}
		merged = reduced
	}
	return strings.TrimSpace(strings.Join(merged, "\n\n")), nil
}

// mapWindows summarizes each window concurrently. A failed window becomes a
// placeholder section so the rest of the document still gets summarized;
// failed reports how many placeholders were emitted.
func (s *synthesizer) mapWindows(ctx context.Context, windows []string) (partials []string, failed int) {
	partials = make([]string, len(windows))
	var g errgroup.Group
	g.SetLimit(4)
	failures := make([]bool, len(windows))
	for i, w := range windows {
		g.Go(func() error {
			out, err := s.model.GenerateText(ctx, summarizeSystemPrompt, fmt.Sprintf(summarizeUserPrompt, w))
			if err != nil {
				s.log.Warn("Section summary failed", "window", i, "error", err.Error())
				partials[i] = fmt.Sprintf("## Section %d\n\n> This section could not be summarized.", i+1)
				failures[i] = true
				return nil
			}
			partials[i] = strings.TrimSpace(out)
			return nil
		})
	}
	_ = g.Wait()
	for _, f := range failures {
		if f {
			failed++
		}
	}
	return partials, failed
}

// Ask grounds an answer on the top-ranked chunks for the question.
func (s *synthesizer) Ask(ctx context.Context, fileID, question string) (AnswerResult, error) {
	result := AnswerResult{}
	retrieved, err := s.retriever.Retrieve(ctx, fileID, question, s.cfg.AskTopK)
	if err != nil {
		return result, err
	}
	result.Lexical = retrieved.Lexical
	result.PartialCoverage = retrieved.PartialCoverage

	budget := s.cfg.windowBudget()
	var b strings.Builder
	for _, m := range retrieved.Matches {
		if b.Len()+len(m.Content)+2 > budget && b.Len() > 0 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(truncateRunes(m.Content, budget))
		result.ChunkIndices = append(result.ChunkIndices, m.ChunkIndex)
	}
	if b.Len() == 0 {
		result.Answer = insufficientContextAnswer
		return result, nil
	}

	answer, err := s.model.GenerateText(ctx, qaSystemPrompt, fmt.Sprintf(qaUserPrompt, b.String(), question))
	if err != nil {
		return AnswerResult{}, domain.WrapError(domain.CodeGenerationUnavailable, "answer generation failed", err)
	}
	result.Answer = strings.TrimSpace(answer)
	return result, nil
}

// SuggestQuestions asks the model for reader questions over a leading
// excerpt of the document. Any trouble, missing rows included, is absorbed
// by the fallback list so the user-visible flow never fails here.
func (s *synthesizer) SuggestQuestions(ctx context.Context, fileID string) (SuggestResult, error) {
	chunks, err := s.chunks.GetByFileID(ctx, nil, fileID)
	if err != nil {
		s.log.Warn("Could not load chunks for question suggestion, serving fallback", "file_id", fileID, "error", err.Error())
		return SuggestResult{Questions: s.fallbackCopy(), Fallback: true}, nil
	}
	if len(chunks) == 0 {
		return SuggestResult{Questions: s.fallbackCopy(), Fallback: true}, nil
	}

	var b strings.Builder
	for _, ch := range chunks {
		if ch == nil {
			continue
		}
		if b.Len() >= s.cfg.SuggestExcerptChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ch.Content)
	}
	excerpt := truncateRunes(b.String(), s.cfg.SuggestExcerptChars)

	raw, err := s.model.GenerateText(ctx, suggestSystemPrompt, fmt.Sprintf(suggestUserPrompt, excerpt))
	if err != nil {
		s.log.Warn("Question suggestion failed, serving fallback", "file_id", fileID, "error", err.Error())
		return SuggestResult{Questions: s.fallbackCopy(), Fallback: true}, nil
	}
	questions := ParseQuestionLines(raw, s.cfg.MaxQuestions)
	if len(questions) == 0 {
		return SuggestResult{Questions: s.fallbackCopy(), Fallback: true}, nil
	}
	return SuggestResult{Questions: questions}, nil
}

func (s *synthesizer) fallbackCopy() []string {
	out := make([]string, len(s.fallback))
	copy(out, s.fallback)
	return out
}

// ParseQuestionLines extracts usable questions from model output: one per
// line, numbering and bullets stripped, must end with '?' and carry more
// than a few words.
func ParseQuestionLines(raw string, max int) []string {
	if max <= 0 {
		max = 4
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		q := strings.TrimSpace(line)
		q = strings.TrimLeft(q, "-*•")
		q = strings.TrimSpace(q)
		// Strip "1." / "2)" style numbering. A bare leading number is part
		// of the question and stays.
		digits := 0
		for digits < len(q) && q[digits] >= '0' && q[digits] <= '9' {
			digits++
		}
		if digits > 0 && digits < len(q) && (q[digits] == '.' || q[digits] == ')') {
			q = strings.TrimSpace(q[digits+1:])
		}
		if len(q) <= 10 || !strings.HasSuffix(q, "?") {
			continue
		}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

// packWindows greedily joins pieces into windows of at most budget runes.
// A single piece over the budget becomes its own truncated window.
func packWindows(pieces []string, budget int) []string {
	if budget <= 0 {
		budget = 1
	}
	var windows []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if curRunes > 0 {
			windows = append(windows, cur.String())
			cur.Reset()
			curRunes = 0
		}
	}
	for _, p := range pieces {
		n := len([]rune(p))
		if n > budget {
			flush()
			windows = append(windows, truncateRunes(p, budget))
			continue
		}
		sep := 0
		if curRunes > 0 {
			sep = 2
		}
		if curRunes+sep+n > budget {
			flush()
			sep = 0
		}
		if sep > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		curRunes += sep + n
	}
	flush()
	if len(windows) == 0 {
		windows = []string{""}
	}
	return windows
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
