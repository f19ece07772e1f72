package store

import (
	"context"
	"time"
)

type QuizMode string

const (
	QuizModeUnset  QuizMode = ""
	QuizModeGive   QuizMode = "give_quiz"
	QuizModeCreate QuizMode = "create_quiz"
)

func (m QuizMode) Valid() bool {
	return m == QuizModeGive || m == QuizModeCreate
}

// VectorIndex is the per-session retrieval index. It is immutable apart from
// Release, which the store calls when the session is destroyed.
type VectorIndex interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
	Len() int
	Dimension() int
	Vectors() [][]float32
	Release()
}

type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

type QuizData struct {
	Questions   []QuizQuestion `json:"questions"`
	UserAnswers map[int]int    `json:"user_answers,omitempty"` // question index -> selected option index
	Score       *int           `json:"score,omitempty"`
}

// Clone returns a deep copy so callers never share state with the store.
func (q *QuizData) Clone() *QuizData {
	if q == nil {
		return nil
	}
	out := &QuizData{Questions: make([]QuizQuestion, len(q.Questions))}
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	if q.UserAnswers != nil {
		out.UserAnswers = make(map[int]int, len(q.UserAnswers))
		for k, v := range q.UserAnswers {
			out.UserAnswers[k] = v
		}
	}
	if q.Score != nil {
		score := *q.Score
		out.Score = &score
	}
	return out
}

type QuizState struct {
	Mode QuizMode
	Data *QuizData
}

// Session is a point-in-time copy of a stored session.
type Session struct {
	ID           string
	Index        VectorIndex
	LastActivity time.Time
	Quiz         QuizState
}

// SessionInfo is the summary exposed by the debug dump.
type SessionInfo struct {
	ID           string
	LastActivity time.Time
	Index        VectorIndex
}
