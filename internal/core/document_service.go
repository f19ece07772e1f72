package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/index"
	"github.com/abdulhaseeb2115/quizzio/internal/llm"
	"github.com/abdulhaseeb2115/quizzio/internal/pdf"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
	"github.com/abdulhaseeb2115/quizzio/internal/utils"
)

// DocumentService turns uploaded PDFs into sessions.
type DocumentService struct {
	sessions  *store.SessionStore
	extractor pdf.Extractor
	embedder  llm.Embedder
	timeout   time.Duration
	log       *zap.Logger
}

func NewDocumentService(sessions *store.SessionStore, extractor pdf.Extractor, embedder llm.Embedder, timeout time.Duration, log *zap.Logger) *DocumentService {
	return &DocumentService{
		sessions:  sessions,
		extractor: extractor,
		embedder:  embedder,
		timeout:   timeout,
		log:       log,
	}
}

// Upload extracts, chunks and embeds the document, then registers a new
// session holding its index. Nothing is stored if any step fails.
func (s *DocumentService) Upload(ctx context.Context, data []byte) (string, error) {
	if !pdf.IsPDF(data) {
		return "", apperr.Validation("Only PDF files are allowed.")
	}
	text, err := s.extractor.ExtractText(data)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from pdf: %w", err)
	}
	chunks := utils.SplitText(text, utils.DefaultChunkSize, utils.DefaultChunkOverlap)
	if len(chunks) == 0 {
		return "", apperr.Validation("PDF contains no extractable text")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	idx, err := index.Build(ctx, s.embedder, chunks)
	if err != nil {
		return "", err
	}
	id, err := s.sessions.Create(idx)
	if err != nil {
		idx.Release()
		return "", err
	}
	s.log.Info("session created",
		zap.String("session_id", id),
		zap.Int("bytes", len(data)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("embed_duration", time.Since(start)),
	)
	return id, nil
}

// Delete removes the session. Unknown ids are ignored.
func (s *DocumentService) Delete(sessionID string) {
	s.sessions.Delete(sessionID)
	s.log.Info("session deleted", zap.String("session_id", sessionID))
}

// IndexDump describes one session's index in the debug dump. Vectors is set
// only when requested.
type IndexDump struct {
	Chunks    int         `json:"chunks"`
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors,omitempty"`
}

type Dump struct {
	VectorDB    map[string]IndexDump `json:"vector_db"`
	SessionData map[string]string    `json:"session_data"`
}

// Dump lists every live session without stamping activity.
func (s *DocumentService) Dump(includeVectors bool) Dump {
	out := Dump{
		VectorDB:    make(map[string]IndexDump),
		SessionData: make(map[string]string),
	}
	for _, info := range s.sessions.Snapshot() {
		d := IndexDump{Chunks: info.Index.Len(), Dimension: info.Index.Dimension()}
		if includeVectors {
			d.Vectors = info.Index.Vectors()
		}
		out.VectorDB[info.ID] = d
		out.SessionData[info.ID] = info.LastActivity.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *DocumentService) SessionCount() int {
	return s.sessions.Len()
}
