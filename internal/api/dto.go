package api

import "github.com/abdulhaseeb2115/quizzio/internal/core"

type AskRequest struct {
	SessionID string `validate:"required"`
	Query     string `validate:"required"`
}

type SessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type QuizModeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Mode      string `json:"mode" validate:"required,oneof=give_quiz create_quiz"`
}

// QuizSubmitRequest carries answers keyed by 0-based question index. Empty
// answers are rejected by the quiz service after the session lookup.
type QuizSubmitRequest struct {
	SessionID string          `json:"session_id" validate:"required"`
	Answers   map[string]*int `json:"answers"`
}

// jsonFieldNames maps struct fields to the names clients send.
var jsonFieldNames = map[string]string{
	"SessionID": "session_id",
	"Query":     "query",
	"Mode":      "mode",
	"Answers":   "answers",
}

type UploadResponse struct {
	SessionID string `json:"session_id"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type QuizModeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type QuizGenerateResponse struct {
	Questions []core.QuestionView `json:"questions"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
