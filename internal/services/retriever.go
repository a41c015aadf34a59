package services

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/quickread/quickread-backend/internal/clients/openai"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
	"github.com/quickread/quickread-backend/internal/vector"
)

// RetrievalResult carries the ranked context for one question plus how it
// was obtained. Lexical means no vectors were available and the chunks were
// scored by keyword overlap instead.
type RetrievalResult struct {
	Matches         []vector.Match
	Lexical         bool
	PartialCoverage bool
}

type Retriever interface {
	Retrieve(ctx context.Context, fileID, query string, k int) (RetrievalResult, error)
}

type retriever struct {
	log    *logger.Logger
	store  vector.Store
	chunks repos.ChunkRepo
	embeds repos.EmbeddingRepo
	model  openai.Client
}

func NewRetriever(
	baseLog *logger.Logger,
	store vector.Store,
	chunkRepo repos.ChunkRepo,
	embeddingRepo repos.EmbeddingRepo,
	model openai.Client,
) Retriever {
	return &retriever{
		log:    baseLog.With("service", "Retriever"),
		store:  store,
		chunks: chunkRepo,
		embeds: embeddingRepo,
		model:  model,
	}
}

func (r *retriever) Retrieve(ctx context.Context, fileID, query string, k int) (RetrievalResult, error) {
	result := RetrievalResult{}
	if k <= 0 {
		k = 3
	}

	total, err := r.chunks.CountByFileID(ctx, nil, fileID)
	if err != nil {
		return result, err
	}
	if total == 0 {
		return result, domain.NewError(domain.CodeDocumentNotFound, "document has no content")
	}
	embedded, err := r.embeds.CountByFileID(ctx, nil, fileID)
	if err != nil {
		return result, err
	}
	result.PartialCoverage = embedded < total

	if embedded > 0 {
		matches, err := r.similarity(ctx, fileID, query, k)
		if err != nil {
			// Similarity search needs the model for the query vector; fall
			// back to lexical scoring rather than failing the question.
			r.log.Warn("Vector retrieval failed, falling back to lexical",
				"file_id", fileID, "error", err.Error())
		} else if len(matches) > 0 {
			result.Matches = matches
			return result, nil
		}
	}

	matches, err := r.lexical(ctx, fileID, query, k)
	if err != nil {
		return result, err
	}
	result.Matches = matches
	result.Lexical = true
	return result, nil
}

func (r *retriever) similarity(ctx context.Context, fileID, query string, k int) ([]vector.Match, error) {
	vecs, err := r.model.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, domain.NewError(domain.CodeExternalService, "embedding response missing query vector")
	}
	return r.store.TopK(ctx, fileID, vecs[0], k)
}

// lexical ranks chunks by the number of distinct query keywords they
// contain, breaking ties by document order.
func (r *retriever) lexical(ctx context.Context, fileID, query string, k int) ([]vector.Match, error) {
	chunks, err := r.chunks.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return nil, err
	}
	keywords := queryKeywords(query)

	type scored struct {
		match vector.Match
	}
	out := make([]scored, 0, len(chunks))
	for _, ch := range chunks {
		if ch == nil {
			continue
		}
		lower := strings.ToLower(ch.Content)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		out = append(out, scored{match: vector.Match{
			ChunkID:    ch.ChunkID,
			ChunkIndex: ch.ChunkIndex,
			Content:    ch.Content,
			Score:      float64(hits),
		}})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].match.Score != out[j].match.Score {
			return out[i].match.Score > out[j].match.Score
		}
		return out[i].match.ChunkIndex < out[j].match.ChunkIndex
	})
	if len(out) > k {
		out = out[:k]
	}
	matches := make([]vector.Match, len(out))
	for i, s := range out {
		matches[i] = s.match
	}
	return matches, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "be": true, "but": true,
	"by": true, "do": true, "does": true, "for": true, "from": true,
	"how": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "with": true,
}

func queryKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
