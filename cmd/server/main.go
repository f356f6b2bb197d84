package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/parley-chat/parley/internal/api"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/db"
	"github.com/parley-chat/parley/internal/llm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Optional .env for local development; the real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("failed to load configuration", zap.Error(err), zap.String("path", *configPath))
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
	}
	defer database.Close()

	gateway, err := llm.New(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.MaxTokens,
		cfg.LLM.Timeout,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize completion gateway", zap.Error(err))
	}

	chatService := chat.NewService(database, gateway, logger)

	handler := api.NewHandler(chatService, database, logger)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handler.HandleHealth)

	authed := func(h http.HandlerFunc) http.Handler { return verifier.Middleware(h) }
	mux.Handle("POST /api/conversations", authed(handler.HandleCreateConversation))
	mux.Handle("GET /api/conversations", authed(handler.HandleListConversations))
	mux.Handle("POST /api/conversations/send", authed(handler.HandleSend))
	mux.Handle("GET /api/conversations/{id}", authed(handler.HandleGetMessages))
	mux.Handle("PATCH /api/conversations/{id}", authed(handler.HandleRenameConversation))
	mux.Handle("DELETE /api/conversations/{id}", authed(handler.HandleDeleteConversation))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a slow completion call plus persistence.
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
	}

	logger.Info("starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", cfg.LLM.Model))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
