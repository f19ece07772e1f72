package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/core"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

// multipartMemory is the part of an upload kept in memory before spilling
// to a temp file.
const multipartMemory = 8 << 20

// maxFormBytes caps /ask and JSON request bodies.
const maxFormBytes = 1 << 20

type APIHandler struct {
	docs           *core.DocumentService
	rag            *core.RAGService
	quiz           *core.QuizService
	validate       *validator.Validate
	maxUploadBytes int64
	log            *zap.Logger
}

func NewAPIHandler(docs *core.DocumentService, rag *core.RAGService, quiz *core.QuizService, maxUploadBytes int64, log *zap.Logger) *APIHandler {
	return &APIHandler{
		docs:           docs,
		rag:            rag,
		quiz:           quiz,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (h *APIHandler) UploadPDFHandler(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "A PDF file is required in the 'file' field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to read upload: %w", err), "Failed to read uploaded file")
		return
	}

	sessionID, err := h.docs.Upload(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err, "Failed to process PDF")
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{SessionID: sessionID})
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	// ParseMultipartForm falls back to url-encoded bodies.
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if !writeTooLarge(w, err) {
			writeDetail(w, http.StatusBadRequest, "Invalid form body: "+err.Error())
		}
		return
	}
	req := AskRequest{
		SessionID: r.FormValue("session_id"),
		Query:     r.FormValue("query"),
	}
	if !h.validRequest(w, &req) {
		return
	}

	answer, err := h.rag.Answer(r.Context(), req.SessionID, req.Query)
	if err != nil {
		h.writeError(w, r, err, "Failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.docs.Delete(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true})
}

// DataDumpHandler lists live sessions for debugging. Raw vectors are
// included only with ?vectors=true.
func (h *APIHandler) DataDumpHandler(w http.ResponseWriter, r *http.Request) {
	includeVectors, _ := strconv.ParseBool(r.URL.Query().Get("vectors"))
	writeJSON(w, http.StatusOK, h.docs.Dump(includeVectors))
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.docs.SessionCount()})
}

func (h *APIHandler) SetQuizModeHandler(w http.ResponseWriter, r *http.Request) {
	var req QuizModeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.quiz.SetMode(r.Context(), req.SessionID, store.QuizMode(req.Mode)); err != nil {
		h.writeError(w, r, err, "Failed to set quiz mode")
		return
	}
	writeJSON(w, http.StatusOK, QuizModeResponse{
		Success: true,
		Message: "Quiz mode set to " + req.Mode,
	})
}

func (h *APIHandler) GenerateGiveQuizHandler(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	data, err := h.quiz.Generate(r.Context(), req.SessionID, store.QuizModeGive)
	if err != nil {
		h.writeError(w, r, err, "Failed to generate quiz")
		return
	}
	writeJSON(w, http.StatusOK, QuizGenerateResponse{Questions: core.Questions(data)})
}

func (h *APIHandler) SubmitQuizHandler(w http.ResponseWriter, r *http.Request) {
	var req QuizSubmitRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	answers := make(map[string]int, len(req.Answers))
	for k, v := range req.Answers {
		if v == nil {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("answers[%q] must be an integer", k))
			return
		}
		answers[k] = *v
	}
	result, err := h.quiz.Score(r.Context(), req.SessionID, answers)
	if err != nil {
		h.writeError(w, r, err, "Failed to score quiz")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) GenerateCreateQuizHandler(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	export, err := h.quiz.GenerateForExport(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err, "Failed to generate quiz")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *APIHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !writeTooLarge(w, err) {
			writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
		return false
	}
	return h.validRequest(w, dst)
}

// writeTooLarge answers 413 when err came from a MaxBytesReader.
func writeTooLarge(w http.ResponseWriter, err error) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}
	writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds the %d byte limit", tooLarge.Limit))
	return true
}

func (h *APIHandler) validRequest(w http.ResponseWriter, req interface{}) bool {
	err := h.validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return false
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	writeDetail(w, http.StatusBadRequest, strings.Join(msgs, "; "))
	return false
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonFieldNames[fe.Field()]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// writeError maps the error taxonomy onto status codes. Unclassified errors
// become 500 with fallback prefixed to the cause.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	detail := apperr.Message(err)
	if status == http.StatusInternalServerError {
		detail = fallback + ": " + err.Error()
	}

	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(fallback, fields...)
	} else {
		h.log.Warn(fallback, fields...)
	}
	writeDetail(w, status, detail)
}

func statusFor(err error) int {
	switch {
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsValidation(err), apperr.IsQuizFormat(err):
		return http.StatusBadRequest
	case apperr.IsProvider(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
