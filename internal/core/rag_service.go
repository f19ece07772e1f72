package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/llm"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

const (
	NumRelevantChunks        = 5 // Number of chunks to retrieve for an answer
	DefaultContextCharBudget = 12000

	chunkSeparator = "\n\n"

	answerSystemInstruction = "You are a helpful assistant. Answer the user's question using only the document context below. " +
		"If the context does not contain the answer, say that the document does not cover it. " +
		"Do not make up information.\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---"
)

type RAGService struct {
	sessions     *store.SessionStore
	completer    llm.Completer
	timeout      time.Duration
	contextChars int
	log          *zap.Logger
}

func NewRAGService(sessions *store.SessionStore, completer llm.Completer, timeout time.Duration, contextChars int, log *zap.Logger) *RAGService {
	if contextChars <= 0 {
		contextChars = DefaultContextCharBudget
	}
	return &RAGService{
		sessions:     sessions,
		completer:    completer,
		timeout:      timeout,
		contextChars: contextChars,
		log:          log,
	}
}

// Answer retrieves the chunks most relevant to query from the session's
// document and returns the completion verbatim.
func (s *RAGService) Answer(ctx context.Context, sessionID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", apperr.Validation("Query cannot be empty")
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	chunks, err := sess.Index.Search(ctx, query, NumRelevantChunks)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	relevantContext := BuildContext(chunks, s.contextChars)
	s.log.Debug("retrieved context for question",
		zap.String("session_id", sessionID),
		zap.Int("chunks", len(chunks)),
		zap.Int("context_chars", len(relevantContext)),
	)

	answer, err := s.completer.Complete(ctx, fmt.Sprintf(answerSystemInstruction, relevantContext), query)
	if err != nil {
		return "", apperr.Provider("failed to get LLM completion", err)
	}
	return answer, nil
}

// BuildContext joins ranked chunks, dropping the lowest-ranked ones until
// the result fits in budget characters. A top chunk that alone exceeds the
// budget is cut to it.
func BuildContext(chunks []string, budget int) string {
	if len(chunks) == 0 {
		return ""
	}
	if budget <= 0 {
		return strings.Join(chunks, chunkSeparator)
	}
	total := 0
	n := 0
	for i, c := range chunks {
		size := len(c)
		if i > 0 {
			size += len(chunkSeparator)
		}
		if total+size > budget {
			break
		}
		total += size
		n++
	}
	if n == 0 {
		return truncateUTF8(chunks[0], budget)
	}
	return strings.Join(chunks[:n], chunkSeparator)
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
