package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

var testVocab = []string{"sky", "grass", "blue", "green", "ocean", "topics"}

// keywordEmbedder counts vocabulary words so retrieval order is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := make([]float32, len(testVocab)+1)
		lower := strings.ToLower(t)
		for i, w := range testVocab {
			v[i] = float32(strings.Count(lower, w))
		}
		// keeps every vector non-zero
		v[len(testVocab)] = 0.01
		out = append(out, v)
	}
	return out, nil
}

type completion struct {
	system string
	prompt string
}

// scriptedCompleter replies with responses in order, repeating the last one.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	gate      chan struct{}
	calls     []completion
}

func (c *scriptedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completion{system: system, prompt: prompt})
	if c.err != nil {
		return "", c.err
	}
	i := len(c.calls) - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedCompleter) lastCall() completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

type staticExtractor struct {
	text string
	err  error
}

func (s staticExtractor) ExtractText([]byte) (string, error) {
	return s.text, s.err
}

var pdfBytes = []byte("%PDF-1.4\n% test document\n")

// quizJSON renders n well-formed questions. Question i has correct index i%4.
func quizJSON(n int) string {
	type q struct {
		Question     string   `json:"question"`
		Options      []string `json:"options"`
		CorrectIndex int      `json:"correct_index"`
		Explanation  string   `json:"explanation"`
	}
	questions := make([]q, n)
	for i := range questions {
		questions[i] = q{
			Question:     fmt.Sprintf("Question %d?", i),
			Options:      []string{fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), fmt.Sprintf("d%d", i)},
			CorrectIndex: i % 4,
			Explanation:  fmt.Sprintf("Because %d.", i),
		}
	}
	b, _ := json.Marshal(map[string]interface{}{"questions": questions})
	return string(b)
}

type harness struct {
	sessions  *store.SessionStore
	embedder  *keywordEmbedder
	completer *scriptedCompleter
	docs      *DocumentService
	rag       *RAGService
	quiz      *QuizService
}

func newHarness(text string, responses ...string) *harness {
	h := &harness{
		sessions:  store.NewSessionStore(),
		embedder:  &keywordEmbedder{},
		completer: &scriptedCompleter{responses: responses},
	}
	log := zap.NewNop()
	h.docs = NewDocumentService(h.sessions, staticExtractor{text: text}, h.embedder, time.Minute, log)
	h.rag = NewRAGService(h.sessions, h.completer, time.Minute, 0, log)
	h.quiz = NewQuizService(h.sessions, h.completer, time.Minute, log)
	return h
}
