package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"session-rag/internal/api"
	"session-rag/internal/chromemdb"
	"session-rag/internal/config"
	"session-rag/internal/db"
	"session-rag/internal/embedding"
	"session-rag/internal/helper"
	"session-rag/internal/llmservice"
	"session-rag/internal/rag"
	"session-rag/internal/sqlitestore"
	"session-rag/internal/vectorstore"
)

const (
	configFilePath  = "./configs/config.yaml"
	shutdownTimeout = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	configPath := flag.String("config", configFilePath, "Path to the yaml config file")
	serve := flag.Bool("serve", false, "Run the HTTP API")
	filePath := flag.String("file", "", "Path to the document file")
	sessionID := flag.String("session", "cli", "Session the document or query belongs to")
	password := flag.String("password", "", "Password for an encrypted PDF")
	query := flag.String("query", "", "Question to be answered")
	reset := flag.Bool("reset", false, "Delete the records of -session")
	all := flag.Bool("all", false, "With -reset, delete the records of every session")
	dryRun := flag.Bool("dry-run", false, "Dry run, print the chunks without saving them")
	export := flag.Bool("export", false, "Write an encrypted snapshot of the chromem store")
	importSnapshot := flag.Bool("import", false, "Load the encrypted snapshot into the chromem store")
	flag.Parse()

	cfg := loadConfig(*configPath)
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Error opening vector store")
	}
	defer store.Close()

	switch {
	case *export:
		exportSnapshot(ctx, store)
		return
	case *importSnapshot:
		loadSnapshot(ctx, store)
		return
	}

	pipeline, err := newPipeline(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pipeline")
	}

	switch {
	case *serve:
		runServer(ctx, cfg, pipeline)
	case *filePath != "" && *dryRun:
		printChunks(pipeline, *filePath, *password)
	case *filePath != "":
		storeFile(ctx, pipeline, *filePath, *sessionID, *password)
	case *query != "":
		performRAG(ctx, pipeline, *query, *sessionID)
	case *reset:
		target := *sessionID
		if *all {
			target = ""
		}
		resetStore(ctx, pipeline, target)
	default:
		log.Fatal().Msg("Please provide one of -serve, -file, -query, -reset, -export or -import")
	}
}

func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Config file not found, using environment and defaults")
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Str("store", cfg.Store.Driver).Str("llm", cfg.LLM.Model).Str("embedding", cfg.EmbedLLM.Model).Msg("Loaded config")
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return db.NewStore(ctx, &cfg.Database, cfg.Store.VectorSize)
	case config.DriverSQLite:
		if err := helper.CreateFolder(cfg.Store.Path); err != nil {
			return nil, err
		}
		return sqlitestore.Open(filepath.Join(cfg.Store.Path, cfg.Store.Collection+".sqlite"))
	default:
		return chromemdb.NewVectorDBManager(&cfg.Store)
	}
}

func newPipeline(cfg *config.Config, store vectorstore.Store) (*rag.RAG, error) {
	provider, err := embedding.NewProvider(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	embedder := embedding.NewEmbedder(provider,
		embedding.WithWorkers(cfg.RAG.EmbedWorkers),
		embedding.WithQueryCache(cfg.RAG.QueryCacheTTL),
	)

	model, err := llmservice.NewModel(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	return rag.NewRAG(cfg, embedder, store, model)
}

func runServer(ctx context.Context, cfg *config.Config, pipeline *rag.RAG) {
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRouter(api.NewHandler(pipeline, cfg), &cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("prefix", cfg.Server.APIPrefix).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func printChunks(pipeline *rag.RAG, filePath, password string) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}

	pages, chunks, err := pipeline.Chunk(rag.IngestRequest{Filename: filepath.Base(filePath), Data: data, Password: password})
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Dry run, nothing stored")
	helper.PrettyPrint(os.Stdout, chunks)
}

func storeFile(ctx context.Context, pipeline *rag.RAG, filePath, sessionID, password string) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	if err := pipeline.CheckUpload(filePath, int64(len(data))); err != nil {
		log.Fatal().Err(err).Msg("File rejected")
	}

	result, err := pipeline.Ingest(ctx, rag.IngestRequest{
		Filename:  filepath.Base(filePath),
		Data:      data,
		SessionID: sessionID,
		Password:  password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error storing document")
	}
	helper.PrettyPrint(os.Stdout, result)
}

func performRAG(ctx context.Context, pipeline *rag.RAG, query, sessionID string) {
	answer, err := pipeline.Query(ctx, query, sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering query")
	}

	fmt.Println(answer.Answer)
	for _, c := range answer.Citations {
		fmt.Printf("\n[%s, page %d]\n%s\n", c.Source, c.Page, c.Text)
	}
}

func resetStore(ctx context.Context, pipeline *rag.RAG, sessionID string) {
	deleted, err := pipeline.Reset(ctx, sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error resetting store")
	}
	if deleted == 0 {
		fmt.Println("Database is already empty.")
		return
	}
	fmt.Printf("Deleted %d records. Database is clean.\n", deleted)
}

func chromemStore(store vectorstore.Store) *chromemdb.VectorDBManager {
	manager, ok := store.(*chromemdb.VectorDBManager)
	if !ok {
		log.Fatal().Msg("Snapshots are only supported by the chromem store")
	}
	return manager
}

func exportSnapshot(ctx context.Context, store vectorstore.Store) {
	path, err := chromemStore(store).Export(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error exporting snapshot")
	}
	log.Info().Str("file_path", path).Msg("Snapshot written")
}

func loadSnapshot(ctx context.Context, store vectorstore.Store) {
	if err := chromemStore(store).Import(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error importing snapshot")
	}
	log.Info().Msg("Snapshot imported")
}
