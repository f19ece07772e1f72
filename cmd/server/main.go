package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/api"
	"github.com/abdulhaseeb2115/quizzio/internal/config"
	"github.com/abdulhaseeb2115/quizzio/internal/core"
	"github.com/abdulhaseeb2115/quizzio/internal/llm"
	"github.com/abdulhaseeb2115/quizzio/internal/logger"
	"github.com/abdulhaseeb2115/quizzio/internal/pdf"
	"github.com/abdulhaseeb2115/quizzio/internal/reaper"
	"github.com/abdulhaseeb2115/quizzio/internal/schedule"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "quizzio",
		Short:        "PDF question answering and quiz server",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file read before the environment")
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "startup error:", err)
		os.Exit(1)
	}
}

func serve(envFile string) error {
	if err := config.LoadConfig(envFile); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.AppConfig

	log := logger.New(cfg.LogLevel, cfg.LogFilePath, cfg.Environment == "production")
	defer log.Sync()

	log.Info("config loaded",
		zap.String("env_file", envFile),
		zap.Bool("env_file_loaded", cfg.EnvFileLoaded),
		zap.String("provider", cfg.LLMProvider),
		zap.String("chat_model", cfg.ChatModel),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.String("frontend_origin", cfg.FrontendOrigin),
	)
	if cfg.KeySanitized {
		log.Info("provider credential contained whitespace; it was stripped")
	}
	if cfg.APIKey == "" {
		log.Warn("provider credential is not set; provider calls will fail", zap.String("provider", cfg.LLMProvider))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := llm.NewProvider(ctx, llm.Options{
		Provider:       cfg.LLMProvider,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}
	defer provider.Close()
	embedder := llm.WrapQueryCache(provider, cfg.QueryEmbedCacheSize, cfg.QueryEmbedCacheTTL)

	sessions := store.NewSessionStore()
	docs := core.NewDocumentService(sessions, pdf.NewLocalExtractor(), embedder, cfg.ProviderTimeout, log)
	rag := core.NewRAGService(sessions, provider, cfg.ProviderTimeout, cfg.ContextCharBudget, log)
	quiz := core.NewQuizService(sessions, provider, cfg.ProviderTimeout, log)

	scheduler := schedule.NewCronScheduler(log)
	if err := scheduler.AddJob(reaper.New(sessions, cfg.SessionTTL, time.Now, log), schedule.Every(cfg.ReaperInterval)); err != nil {
		return fmt.Errorf("schedule session reaper: %w", err)
	}
	scheduler.Start(ctx)

	apiHandler := api.NewAPIHandler(docs, rag, quiz, cfg.MaxUploadBytes, log)
	router := api.NewRouter(apiHandler, cfg.FrontendOrigin)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // Uploads can be large
		WriteTimeout: cfg.ProviderTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		scheduler.Stop()
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Stop accepting requests first, then stop the reaper.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop()

	log.Info("server exiting", zap.Int("sessions_dropped", sessions.Len()))
	return nil
}
