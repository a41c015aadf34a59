package vector

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

// Match is one retrieved chunk with its similarity score.
type Match struct {
	ChunkID    uuid.UUID
	ChunkIndex int
	Content    string
	Score      float64
}

// Store answers similarity queries scoped to a single document.
type Store interface {
	// TopK returns the k most similar chunks under cosine similarity,
	// ordered by score descending with ties broken by ascending chunk_index.
	TopK(ctx context.Context, fileID string, query []float32, k int) ([]Match, error)
}

type store struct {
	log        *logger.Logger
	chunks     repos.ChunkRepo
	embeddings repos.EmbeddingRepo
}

func NewStore(baseLog *logger.Logger, chunks repos.ChunkRepo, embeddings repos.EmbeddingRepo) Store {
	return &store{
		log:        baseLog.With("service", "VectorStore"),
		chunks:     chunks,
		embeddings: embeddings,
	}
}

func (s *store) TopK(ctx context.Context, fileID string, query []float32, k int) ([]Match, error) {
	if k <= 0 || fileID == "" || len(query) == 0 {
		return nil, nil
	}

	chunks, err := s.chunks.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	embs, err := s.embeddings.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return nil, err
	}
	vectors := make(map[uuid.UUID][]float32, len(embs))
	for _, e := range embs {
		if e == nil {
			continue
		}
		vec, err := DecodeVector(e.Vector)
		if err != nil {
			s.log.Warn("Skipping undecodable embedding", "chunk_id", e.ChunkID, "error", err)
			continue
		}
		vectors[e.ChunkID] = vec
	}

	matches := make([]Match, 0, len(vectors))
	for _, ch := range chunks {
		vec, ok := vectors[ch.ChunkID]
		if !ok {
			// Not yet embedded; the retriever handles partial coverage.
			continue
		}
		matches = append(matches, Match{
			ChunkID:    ch.ChunkID,
			ChunkIndex: ch.ChunkIndex,
			Content:    ch.Content,
			Score:      Cosine(query, vec),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

func DecodeVector(raw datatypes.JSON) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func EncodeVector(vec []float32) (datatypes.JSON, error) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
