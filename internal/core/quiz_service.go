package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/llm"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

const (
	QuizQuestionCount = 10
	QuizOptionCount   = 4
	quizChunkCount    = 15
	quizContextQuery  = "main topics concepts information"
)

type QuestionView struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	QuestionIndex int      `json:"question_index"`
}

type QuestionResult struct {
	QuestionIndex int    `json:"question_index"`
	UserAnswer    *int   `json:"user_answer"`
	CorrectAnswer int    `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Question      string `json:"question"`
}

type ScoreResult struct {
	TotalScore     int              `json:"total_score"`
	TotalQuestions int              `json:"total_questions"`
	Results        []QuestionResult `json:"results"`
	Explanations   []string         `json:"explanations"`
}

type ExportQuestion struct {
	QuestionIndex int      `json:"question_index"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
}

type ExportAnswer struct {
	QuestionIndex int    `json:"question_index"`
	Question      string `json:"question"`
	CorrectAnswer string `json:"correct_answer"`
	CorrectIndex  int    `json:"correct_index"`
	Explanation   string `json:"explanation"`
}

type QuizExport struct {
	Questions []ExportQuestion `json:"questions"`
	Answers   []ExportAnswer   `json:"answers"`
}

type QuizService struct {
	sessions  *store.SessionStore
	completer llm.Completer
	timeout   time.Duration
	log       *zap.Logger
	flights   singleflight.Group
}

func NewQuizService(sessions *store.SessionStore, completer llm.Completer, timeout time.Duration, log *zap.Logger) *QuizService {
	return &QuizService{
		sessions:  sessions,
		completer: completer,
		timeout:   timeout,
		log:       log,
	}
}

func (s *QuizService) SetMode(_ context.Context, sessionID string, mode store.QuizMode) error {
	if !mode.Valid() {
		return apperr.Validation(fmt.Sprintf("Invalid quiz mode %q", mode))
	}
	if err := s.sessions.SetQuizMode(sessionID, mode); err != nil {
		return err
	}
	s.log.Info("quiz mode set", zap.String("session_id", sessionID), zap.String("mode", string(mode)))
	return nil
}

// Generate returns the session's quiz, generating it on first use. The
// session must be in mode want.
func (s *QuizService) Generate(ctx context.Context, sessionID string, want store.QuizMode) (*store.QuizData, error) {
	state, err := s.sessions.QuizState(sessionID)
	if err != nil {
		return nil, err
	}
	if state.Mode != want {
		return nil, apperr.Validation(fmt.Sprintf("Quiz mode must be set to '%s' first", want))
	}
	if state.Data != nil {
		return state.Data, nil
	}

	// Concurrent first calls for one session share a single provider call.
	// The shared call must outlive any one client disconnecting.
	v, err, _ := s.flights.Do(sessionID, func() (interface{}, error) {
		return s.generate(context.WithoutCancel(ctx), sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.QuizData).Clone(), nil
}

func (s *QuizService) generate(ctx context.Context, sessionID string) (*store.QuizData, error) {
	// The index may have been released since the caller looked; fetch it
	// again and pick up data stored by a flight that just finished.
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Quiz.Data != nil {
		return sess.Quiz.Data, nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	chunks, err := sess.Index.Search(ctx, quizContextQuery, quizChunkCount)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve quiz context: %w", err)
	}
	prompt := fmt.Sprintf(quizUserPrompt, BuildContext(chunks, 0))

	start := time.Now()
	raw, err := s.completer.Complete(ctx, quizSystemInstruction, prompt)
	if err != nil {
		return nil, apperr.Provider("failed to generate quiz", err)
	}

	data, err := ParseQuiz(raw)
	if err != nil {
		s.log.Warn("quiz generation returned malformed output",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	// Writing back fails if the session was deleted or reaped meanwhile.
	stored, err := s.sessions.SetQuizData(sessionID, data)
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz generated",
		zap.String("session_id", sessionID),
		zap.Int("context_chunks", len(chunks)),
		zap.Duration("duration", time.Since(start)),
	)
	return stored, nil
}

// Questions returns the quiz without answers, 0-based.
func Questions(data *store.QuizData) []QuestionView {
	out := make([]QuestionView, len(data.Questions))
	for i, q := range data.Questions {
		out[i] = QuestionView{Question: q.Question, Options: q.Options, QuestionIndex: i}
	}
	return out
}

// Score grades answers, keyed by 0-based question index as a canonical
// decimal string ("01" and "+1" are rejected),
// against the stored quiz and records them in the session. Unanswered
// questions count as wrong.
func (s *QuizService) Score(_ context.Context, sessionID string, answers map[string]int) (*ScoreResult, error) {
	state, err := s.sessions.QuizState(sessionID)
	if err != nil {
		return nil, err
	}
	if state.Mode != store.QuizModeGive {
		return nil, apperr.Validation("Quiz mode must be 'give_quiz' to submit answers")
	}
	if len(answers) == 0 {
		return nil, apperr.Validation("No answers provided")
	}
	parsed := make(map[int]int, len(answers))
	for k, v := range answers {
		idx, err := strconv.Atoi(k)
		if err != nil || strconv.Itoa(idx) != k {
			return nil, apperr.Validation(fmt.Sprintf("Invalid question index %q", k))
		}
		parsed[idx] = v
	}
	if state.Data == nil || len(state.Data.Questions) == 0 {
		return nil, apperr.Validation("Quiz data not found for this session")
	}

	result := Grade(state.Data, parsed)
	if err := s.sessions.RecordSubmission(sessionID, parsed, result.TotalScore); err != nil {
		return nil, err
	}
	s.log.Info("quiz scored",
		zap.String("session_id", sessionID),
		zap.Int("score", result.TotalScore),
		zap.Int("answered", len(parsed)),
	)
	return result, nil
}

// Grade is the pure scoring step of Score.
func Grade(data *store.QuizData, answers map[int]int) *ScoreResult {
	result := &ScoreResult{
		TotalQuestions: len(data.Questions),
		Results:        make([]QuestionResult, 0, len(data.Questions)),
		Explanations:   make([]string, 0, len(data.Questions)),
	}
	for i, q := range data.Questions {
		var userAnswer *int
		if v, ok := answers[i]; ok {
			v := v
			userAnswer = &v
		}
		correct := userAnswer != nil && *userAnswer == q.CorrectIndex
		if correct {
			result.TotalScore++
		}
		result.Results = append(result.Results, QuestionResult{
			QuestionIndex: i,
			UserAnswer:    userAnswer,
			CorrectAnswer: q.CorrectIndex,
			IsCorrect:     correct,
			Question:      q.Question,
		})
		result.Explanations = append(result.Explanations, q.Explanation)
	}
	return result
}

// GenerateForExport returns the quiz split into a printable question sheet
// and an answer key, both numbered from 1.
func (s *QuizService) GenerateForExport(ctx context.Context, sessionID string) (*QuizExport, error) {
	data, err := s.Generate(ctx, sessionID, store.QuizModeCreate)
	if err != nil {
		return nil, err
	}
	return Export(data), nil
}

func Export(data *store.QuizData) *QuizExport {
	out := &QuizExport{
		Questions: make([]ExportQuestion, 0, len(data.Questions)),
		Answers:   make([]ExportAnswer, 0, len(data.Questions)),
	}
	for i, q := range data.Questions {
		out.Questions = append(out.Questions, ExportQuestion{
			QuestionIndex: i + 1,
			Question:      q.Question,
			Options:       q.Options,
		})
		out.Answers = append(out.Answers, ExportAnswer{
			QuestionIndex: i + 1,
			Question:      q.Question,
			CorrectAnswer: q.Options[q.CorrectIndex],
			CorrectIndex:  q.CorrectIndex,
			Explanation:   q.Explanation,
		})
	}
	return out
}
