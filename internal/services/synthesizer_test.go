package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/data/repos/testutil"
	"github.com/quickread/quickread-backend/internal/domain"
)

func newSynthFixture(t *testing.T, cfg SynthesizerConfig, model *fakeModel, ret Retriever) (Synthesizer, *gorm.DB) {
	t.Helper()
	gdb := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	if ret == nil {
		ret = &fakeRetriever{}
	}
	return NewSynthesizer(log, cfg, repos.NewChunkRepo(gdb, log), model, ret, nil), gdb
}

func TestSummarize_SingleWindow(t *testing.T) {
	model := &fakeModel{genResponse: func(_, _ string) (string, error) {
		return "## Overview\nShort summary.", nil
	}}
	synth, gdb := newSynthFixture(t, SynthesizerConfig{}, model, nil)
	fileID := "sum_single"
	seedChunks(t, gdb, fileID, []string{"intro text", "body text"})

	out, err := synth.Summarize(context.Background(), fileID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "## Overview\nShort summary." {
		t.Fatalf("unexpected summary %q", out)
	}
	if _, _, calls := model.stats(); calls != 1 {
		t.Fatalf("expected a single generation call, got %d", calls)
	}
}

func TestSummarize_MapReduceOverMultipleWindows(t *testing.T) {
	model := &fakeModel{genResponse: func(_, user string) (string, error) {
		if strings.Contains(user, "partial summaries") {
			return "merged summary", nil
		}
		return "partial summary", nil
	}}
	cfg := SynthesizerConfig{MaxContextChars: 600, PromptOverhead: 100}
	synth, gdb := newSynthFixture(t, cfg, model, nil)
	fileID := "sum_mapreduce"
	seedChunks(t, gdb, fileID, []string{longText(8), longText(8), longText(8)})

	out, err := synth.Summarize(context.Background(), fileID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "merged summary" {
		t.Fatalf("expected the reduced summary, got %q", out)
	}
	if _, _, calls := model.stats(); calls < 3 {
		t.Fatalf("expected map calls plus a reduce, got %d calls", calls)
	}
}

func TestSummarize_FailedWindowBecomesPlaceholder(t *testing.T) {
	var windowSeen int
	model := &fakeModel{genResponse: func(_, user string) (string, error) {
		if strings.Contains(user, "partial summaries") {
			return "merged with gap", nil
		}
		windowSeen++
		if windowSeen == 1 {
			return "", fmt.Errorf("window failed")
		}
		return "fine summary", nil
	}}
	cfg := SynthesizerConfig{MaxContextChars: 600, PromptOverhead: 100}
	synth, gdb := newSynthFixture(t, cfg, model, nil)
	fileID := "sum_placeholder"
	seedChunks(t, gdb, fileID, []string{longText(8), longText(8), longText(8)})

	out, err := synth.Summarize(context.Background(), fileID)
	if err != nil {
		t.Fatalf("one failed window should not fail the summary: %v", err)
	}
	if out == "" {
		t.Fatalf("expected a summary despite a failed window")
	}
}

func TestSummarize_GenerationDown(t *testing.T) {
	model := &fakeModel{failAllGen: true}
	synth, gdb := newSynthFixture(t, SynthesizerConfig{}, model, nil)
	fileID := "sum_down"
	seedChunks(t, gdb, fileID, []string{"some text"})

	_, err := synth.Summarize(context.Background(), fileID)
	if !domain.IsCode(err, domain.CodeGenerationUnavailable) {
		t.Fatalf("expected generation_unavailable, got %v", err)
	}
}

func TestSummarize_UnknownDocument(t *testing.T) {
	synth, _ := newSynthFixture(t, SynthesizerConfig{}, &fakeModel{}, nil)
	_, err := synth.Summarize(context.Background(), "gone")
	if !domain.IsCode(err, domain.CodeDocumentNotFound) {
		t.Fatalf("expected document_not_found, got %v", err)
	}
}

func TestAsk_GroundsOnRetrievedChunks(t *testing.T) {
	ret := &fakeRetriever{result: RetrievalResult{Matches: matchesOf("context one", "context two")}}
	var captured string
	model := &fakeModel{genResponse: func(_, user string) (string, error) {
		captured = user
		return "the answer", nil
	}}
	synth, _ := newSynthFixture(t, SynthesizerConfig{}, model, ret)

	res, err := synth.Ask(context.Background(), "f", "what happened?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "the answer" {
		t.Fatalf("unexpected answer %q", res.Answer)
	}
	if len(res.ChunkIndices) != 2 {
		t.Fatalf("expected both chunks used, got %v", res.ChunkIndices)
	}
	if !strings.Contains(captured, "context one") || !strings.Contains(captured, "what happened?") {
		t.Fatalf("prompt missing context or question: %q", captured)
	}
}

func TestAsk_NoContext(t *testing.T) {
	ret := &fakeRetriever{result: RetrievalResult{}}
	model := &fakeModel{}
	synth, _ := newSynthFixture(t, SynthesizerConfig{}, model, ret)

	res, err := synth.Ask(context.Background(), "f", "anything?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != insufficientContextAnswer {
		t.Fatalf("expected the insufficient context answer, got %q", res.Answer)
	}
	if _, _, calls := model.stats(); calls != 0 {
		t.Fatalf("no context should mean no generation call")
	}
}

func TestAsk_GenerationDown(t *testing.T) {
	ret := &fakeRetriever{result: RetrievalResult{Matches: matchesOf("some context")}}
	synth, _ := newSynthFixture(t, SynthesizerConfig{}, &fakeModel{failAllGen: true}, ret)

	_, err := synth.Ask(context.Background(), "f", "anything?")
	if !domain.IsCode(err, domain.CodeGenerationUnavailable) {
		t.Fatalf("expected generation_unavailable, got %v", err)
	}
}

func TestSuggestQuestions_ParsesModelOutput(t *testing.T) {
	model := &fakeModel{genResponse: func(_, _ string) (string, error) {
		return "1. What is the main argument of the paper?\n" +
			"- How were the experiments designed?\n" +
			"not a question\n" +
			"Too short?\n" +
			"What do the results imply for practice?\n", nil
	}}
	synth, gdb := newSynthFixture(t, SynthesizerConfig{}, model, nil)
	fileID := "sug_parse"
	seedChunks(t, gdb, fileID, []string{"document body"})

	res, err := synth.SuggestQuestions(context.Background(), fileID)
	if err != nil {
		t.Fatalf("SuggestQuestions: %v", err)
	}
	if res.Fallback {
		t.Fatalf("model output should not trigger the fallback")
	}
	want := []string{
		"What is the main argument of the paper?",
		"How were the experiments designed?",
		"What do the results imply for practice?",
	}
	if len(res.Questions) != len(want) {
		t.Fatalf("got %v, want %v", res.Questions, want)
	}
	for i := range want {
		if res.Questions[i] != want[i] {
			t.Fatalf("question %d: got %q want %q", i, res.Questions[i], want[i])
		}
	}
}

func TestSuggestQuestions_FallbackOnFailure(t *testing.T) {
	model := &fakeModel{failAllGen: true}
	synth, gdb := newSynthFixture(t, SynthesizerConfig{}, model, nil)
	fileID := "sug_fallback"
	seedChunks(t, gdb, fileID, []string{"document body"})

	res, err := synth.SuggestQuestions(context.Background(), fileID)
	if err != nil {
		t.Fatalf("fallback path should not error: %v", err)
	}
	if !res.Fallback {
		t.Fatalf("expected the fallback flag")
	}
	if len(res.Questions) != len(DefaultFallbackQuestions) {
		t.Fatalf("expected the default questions, got %v", res.Questions)
	}
}

func TestSuggestQuestions_FallbackWhenDocumentGone(t *testing.T) {
	model := &fakeModel{}
	synth, _ := newSynthFixture(t, SynthesizerConfig{}, model, nil)

	res, err := synth.SuggestQuestions(context.Background(), "gone")
	if err != nil {
		t.Fatalf("missing rows should serve the fallback, not error: %v", err)
	}
	if !res.Fallback {
		t.Fatalf("expected the fallback flag")
	}
	if len(res.Questions) != len(DefaultFallbackQuestions) {
		t.Fatalf("expected the default questions, got %v", res.Questions)
	}
	if _, _, calls := model.stats(); calls != 0 {
		t.Fatalf("no rows should mean no generation call")
	}
}

func TestParseQuestionLines_KeepsLeadingNumbers(t *testing.T) {
	got := ParseQuestionLines("2024 saw which regulatory changes?\n3. Which markets grew the fastest?\n", 4)
	want := []string{
		"2024 saw which regulatory changes?",
		"Which markets grew the fastest?",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("question %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestParseQuestionLines_CapsAndFilters(t *testing.T) {
	raw := "1) First real question about the topic?\n" +
		"2) Second real question about the topic?\n" +
		"3) Third real question about the topic?\n" +
		"4) Fourth real question about the topic?\n" +
		"5) Fifth real question about the topic?\n"
	got := ParseQuestionLines(raw, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(got))
	}
	if got[0] != "First real question about the topic?" {
		t.Fatalf("numbering not stripped: %q", got[0])
	}
}

func TestPackWindows(t *testing.T) {
	windows := packWindows([]string{"aaaa", "bbbb", "cccc"}, 10)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d: %v", len(windows), windows)
	}
	if windows[0] != "aaaa\n\nbbbb" || windows[1] != "cccc" {
		t.Fatalf("unexpected packing: %v", windows)
	}

	// An oversized piece is truncated into its own window.
	windows = packWindows([]string{"0123456789abcdef"}, 10)
	if len(windows) != 1 || windows[0] != "0123456789" {
		t.Fatalf("oversized piece not truncated: %v", windows)
	}
}
