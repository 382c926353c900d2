package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docqa/internal/api"
	"docqa/internal/catalog"
	"docqa/internal/chat"
	"docqa/internal/composer"
	"docqa/internal/config"
	"docqa/internal/conversation"
	"docqa/internal/embeddings"
	"docqa/internal/federation"
	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/ownership"
	"docqa/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open collection store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ollamaTimeout := time.Duration(cfg.Services.Ollama.Timeout) * time.Second
	var embedder embeddings.Provider
	if cfg.Services.Ollama.Enabled {
		embedder = embeddings.NewOllamaProvider(
			cfg.Services.Ollama.BaseURL,
			cfg.Services.Ollama.EmbeddingModel,
			ollamaTimeout,
			logger,
		)
	} else {
		embedder = embeddings.NewHashProvider()
	}

	var generator composer.Generator
	if cfg.Services.Ollama.Generate {
		generator = llm.NewOllamaClient(
			cfg.Services.Ollama.BaseURL,
			cfg.Services.Ollama.LLMModel,
			ollamaTimeout,
		)
	}

	filter := ownership.NewFilter(store, logger)
	engine := federation.NewEngine(store, embedder, filter, federation.Options{
		ScopedTopK:        cfg.Search.ScopedTopK,
		PublicTopK:        cfg.Search.PublicTopK,
		CollectionTimeout: cfg.CollectionTimeout(),
	}, logger)

	conversations := conversation.NewMemoryStore(cfg.ConversationTTL())
	comp := composer.New(generator, cfg.Conversation.HistoryWindow, logger)

	chatSvc := chat.NewService(engine, conversations, comp, cfg.Search.MaxLimit, logger)
	catalogSvc := catalog.NewService(store, filter, logger)
	ingestSvc := ingest.NewService(store, embedder, logger)

	server := api.NewServer(cfg, engine, chatSvc, catalogSvc, ingestSvc, store, embedder, comp, logger)

	logger.Info("document QA service starting",
		zap.String("environment", cfg.App.Environment),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("ollama", cfg.Services.Ollama.Enabled),
	)
	if err := server.Run(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.App.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
