// Package app wires configuration, infrastructure clients, the ingestion
// worker pool, and the HTTP server into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/core/database"
	"github.com/lectern-ai/lectern/internal/core/extractor"
	ingest "github.com/lectern-ai/lectern/internal/core/ingestion_engine"
	"github.com/lectern-ai/lectern/internal/core/llm"
	"github.com/lectern-ai/lectern/internal/core/objectstore"
	query "github.com/lectern-ai/lectern/internal/core/query_engine"
	"github.com/lectern-ai/lectern/internal/core/queue"
	"github.com/lectern-ai/lectern/internal/core/vectorindex"
	"github.com/lectern-ai/lectern/internal/services"
)

type App struct {
	DBClient core.DbClient
	Ingestor *ingest.Service
	Server   *Server

	log      *zap.Logger
	embedder *llm.GeminiEmbedder
	genLLM   *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := database.NewClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info("database initialized and bootstrapped")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	log.Info("object store client ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	genLLM, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	retryingEmbedder := llm.NewRetryingEmbedder(embedder, 5, cfg.MaxRetries)
	ratedLLM := llm.NewRateLimitedLLM(genLLM, 2)

	procQueue := queue.NewPostgresQueue(dbClient.DB(), cfg.MaxRetries)
	index := vectorindex.NewPostgresIndex(dbClient.DB())
	registry := extractor.NewRegistry()

	ingestor := ingest.NewService(
		procQueue, dbClient, objClient, cfg.BucketName,
		retryingEmbedder, index, registry, ingest.NewBroadcaster(), log,
		ingest.Config{
			Workers:        cfg.Workers,
			PollInterval:   time.Duration(cfg.PollIntervalMS) * time.Millisecond,
			JobTimeout:     time.Duration(cfg.JobTimeoutSec) * time.Second,
			ExtractTimeout: time.Duration(cfg.ExtractTimeoutSec) * time.Second,
			EmbedBatchSize: cfg.EmbedBatchSize,
			Chunker: ingest.ChunkerConfig{
				TargetSize: cfg.TargetChunkSize,
				Overlap:    cfg.OverlapFraction,
			},
		},
	)

	docs := services.NewDocumentService(
		dbClient, objClient, procQueue, index,
		cfg.BucketName, cfg.MaxUploadMB, log,
	)

	querySvc := query.NewService(dbClient, retryingEmbedder, index, ratedLLM, log, query.Config{
		TopK:            cfg.TopK,
		RelevanceFloor:  cfg.RelevanceFloor,
		MaxContextChars: cfg.MaxContextChars,
	})

	server := NewServer(cfg, dbClient, docs, procQueue, querySvc, log)

	return &App{
		DBClient: dbClient,
		Ingestor: ingestor,
		Server:   server,
		log:      log,
		embedder: embedder,
		genLLM:   genLLM,
	}, nil
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.genLLM != nil {
		_ = a.genLLM.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
