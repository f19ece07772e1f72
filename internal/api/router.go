package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(apiHandler *APIHandler, frontendOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(apiHandler.log),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(CORS([]string{frontendOrigin}))

	// Document and question routes
	r.Post("/upload-pdf", apiHandler.UploadPDFHandler)
	r.Post("/ask", apiHandler.AskHandler)
	r.Post("/delete-session/{sessionID}", apiHandler.DeleteSessionHandler)
	r.Get("/data", apiHandler.DataDumpHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Route("/quiz", func(r chi.Router) {
			r.Post("/mode", apiHandler.SetQuizModeHandler)
			r.Post("/generate/give", apiHandler.GenerateGiveQuizHandler)
			r.Post("/submit", apiHandler.SubmitQuizHandler)
			r.Post("/generate/create", apiHandler.GenerateCreateQuizHandler)
		})
	})

	return r
}
