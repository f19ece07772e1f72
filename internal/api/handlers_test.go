package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/core"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

const testOrigin = "http://localhost:3000"

var pdfBytes = []byte("%PDF-1.4\n% test document\n")

type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(lower, "sky")),
			float32(strings.Count(lower, "grass")),
			0.01,
		}
	}
	return out, nil
}

type stubCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.response, s.err
}

type textExtractor string

func (t textExtractor) ExtractText([]byte) (string, error) {
	return string(t), nil
}

type testServer struct {
	handler   http.Handler
	completer *stubCompleter
}

func newTestServer(t *testing.T, text string, maxUpload int64) *testServer {
	t.Helper()
	sessions := store.NewSessionStore()
	completer := &stubCompleter{response: "It is blue."}
	log := zap.NewNop()
	docs := core.NewDocumentService(sessions, textExtractor(text), wordEmbedder{}, time.Minute, log)
	rag := core.NewRAGService(sessions, completer, time.Minute, 0, log)
	quiz := core.NewQuizService(sessions, completer, time.Minute, log)
	h := NewAPIHandler(docs, rag, quiz, maxUpload, log)
	return &testServer{handler: NewRouter(h, testOrigin), completer: completer}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "doc.pdf")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func (s *testServer) newSession(t *testing.T) string {
	t.Helper()
	rec := s.upload(t, pdfBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func (s *testServer) postJSON(path string, v interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *testServer) submit(sessionID string, answers map[string]int) *httptest.ResponseRecorder {
	return s.postJSON("/api/quiz/submit", map[string]interface{}{"session_id": sessionID, "answers": answers})
}

func (s *testServer) ask(sessionID, query string) *httptest.ResponseRecorder {
	form := url.Values{"session_id": {sessionID}, "query": {query}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func quizPayload(n int) string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf(`{"question": "Q%d?", "options": ["a","b","c","d"], "correct_index": %d, "explanation": "E%d"}`, i, i%4, i)
	}
	return `{"questions": [` + strings.Join(qs, ",") + `]}`
}

func TestUploadAndAsk(t *testing.T) {
	s := newTestServer(t, "The sky is blue. Grass is green.", 1<<20)
	id := s.newSession(t)

	rec := s.ask(id, "What color is the sky?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "It is blue.", resp.Answer)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAskMultipartForm(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)
	id := s.newSession(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("session_id", id))
	require.NoError(t, mw.WriteField("query", "sky?"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ask", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAskErrors(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)

	rec := s.ask("unknown", "sky?")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session expired or not found", detail(t, rec))

	rec = s.ask("", "sky?")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "session_id is required", detail(t, rec))

	id := s.newSession(t)
	s.completer.err = errors.New("provider unavailable")
	rec = s.ask(id, "sky?")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, detail(t, rec), "provider unavailable")
}

func TestUploadRejections(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)

	rec := s.upload(t, []byte("just some text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files are allowed.", detail(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := newTestServer(t, "   ", 1<<20)
	rec = empty.upload(t, pdfBytes)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PDF contains no extractable text", detail(t, rec))
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 64)
	rec := s.upload(t, bytes.Repeat([]byte("%PDF-1.4\n"), 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)
	id := s.newSession(t)

	for i := 0; i < 2; i++ {
		rec := s.do(httptest.NewRequest(http.MethodPost, "/delete-session/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"deleted": true}`, rec.Body.String())
	}

	rec := s.ask(id, "sky?")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndDataDump(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)
	id := s.newSession(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/data?vectors=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dump core.Dump
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dump))
	require.Contains(t, dump.VectorDB, id)
	assert.Len(t, dump.VectorDB[id].Vectors, 1)
	assert.Contains(t, dump.SessionData, id)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := s.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestQuizGiveFlow(t *testing.T) {
	s := newTestServer(t, "Main topics of the sky.", 1<<20)
	s.completer.response = "```json\n" + quizPayload(10) + "\n```"
	id := s.newSession(t)

	rec := s.postJSON("/api/quiz/generate/give", SessionRequest{SessionID: id})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Quiz mode must be set to 'give_quiz' first", detail(t, rec))

	rec = s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: id, Mode: "give_quiz"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true, "message": "Quiz mode set to give_quiz"}`, rec.Body.String())

	rec = s.postJSON("/api/quiz/generate/give", SessionRequest{SessionID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "correct_index")
	var gen QuizGenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	require.Len(t, gen.Questions, 10)
	assert.Equal(t, 0, gen.Questions[0].QuestionIndex)

	rec = s.submit(id, map[string]int{"0": 2, "1": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.ScoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalScore)
	assert.Equal(t, 10, result.TotalQuestions)
	require.Len(t, result.Results, 10)
	assert.Nil(t, result.Results[9].UserAnswer)
	assert.False(t, result.Results[9].IsCorrect)

	rec = s.submit(id, map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No answers provided", detail(t, rec))

	assert.Equal(t, 1, s.completer.calls)
}

func TestQuizCreateFlow(t *testing.T) {
	s := newTestServer(t, "Main topics of the sky.", 1<<20)
	s.completer.response = quizPayload(10)
	id := s.newSession(t)

	rec := s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: id, Mode: "create_quiz"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.postJSON("/api/quiz/generate/create", SessionRequest{SessionID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var export core.QuizExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, 1, export.Questions[0].QuestionIndex)
	assert.Equal(t, 1, export.Answers[0].QuestionIndex)
	assert.Equal(t, export.Questions[0].Options[export.Answers[0].CorrectIndex], export.Answers[0].CorrectAnswer)

	rec = s.submit(id, map[string]int{"0": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Quiz mode must be 'give_quiz' to submit answers", detail(t, rec))
}

func TestQuizErrors(t *testing.T) {
	s := newTestServer(t, "Main topics.", 1<<20)
	s.completer.response = quizPayload(9)

	rec := s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: "unknown", Mode: "give_quiz"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := s.newSession(t)
	rec = s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: id, Mode: "take_quiz"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "mode must be one of [give_quiz create_quiz]", detail(t, rec))

	rec = s.postJSON("/api/quiz/generate/give", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "session_id is required", detail(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/quiz/submit", strings.NewReader("{not json"))
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: id, Mode: "give_quiz"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.postJSON("/api/quiz/generate/give", SessionRequest{SessionID: id})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Expected 10 questions, got 9", detail(t, rec))

	s.completer.err = errors.New("model overloaded")
	rec = s.postJSON("/api/quiz/generate/give", SessionRequest{SessionID: id})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestQuizSubmitRejectsMalformedAnswers(t *testing.T) {
	s := newTestServer(t, "Main topics of the sky.", 1<<20)
	s.completer.response = quizPayload(10)
	id := s.newSession(t)
	require.Equal(t, http.StatusOK, s.postJSON("/api/quiz/mode", QuizModeRequest{SessionID: id, Mode: "give_quiz"}).Code)
	require.Equal(t, http.StatusOK, s.postJSON("/api/quiz/generate/give", SessionRequest{SessionID: id}).Code)

	body := fmt.Sprintf(`{"session_id": %q, "answers": {"0": null}}`, id)
	req := httptest.NewRequest(http.MethodPost, "/api/quiz/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `answers["0"] must be an integer`, detail(t, rec))

	rec = s.submit(id, map[string]int{"1": 1, "01": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `Invalid question index "01"`, detail(t, rec))

	// Nothing was recorded, so a valid submission still scores from scratch.
	rec = s.submit(id, map[string]int{"1": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.ScoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalScore)
}

func TestRequestBodiesAreCapped(t *testing.T) {
	s := newTestServer(t, "The sky is blue.", 1<<20)
	id := s.newSession(t)

	rec := s.ask(id, strings.Repeat("sky ", maxFormBytes/4+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, detail(t, rec), "byte limit")

	body := fmt.Sprintf(`{"session_id": %q, "mode": "give_quiz", "pad": %q}`, id, strings.Repeat("x", maxFormBytes))
	req := httptest.NewRequest(http.MethodPost, "/api/quiz/mode", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = s.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, s.completer.calls)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}
