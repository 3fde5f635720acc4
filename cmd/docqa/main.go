package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"docqa/internal/chunk"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/server"
	"docqa/internal/store"
	"docqa/internal/vectorstore"
)

var (
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "Local document question-answering assistant",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd(), ingestCmd(), askCmd(), apikeyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the service objects shared by all commands. Everything is
// constructed once and passed by reference, never kept as globals.
type app struct {
	cfg      *config.Config
	db       *bun.DB
	vectors  *vectorstore.Store
	splitter *chunk.Splitter
	rag      *rag.Service
	jobs     *ingest.Service
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Debug().Interface("config", cfg.Storage).Msg("Loaded config")

	for _, dir := range []string{cfg.Storage.VectorDBPath, cfg.Storage.DocsPath} {
		if err := helper.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	sqldb, err := store.ConnectDB(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db := store.NewDB(sqldb, cfg.Server.Debug)
	if err := store.InitDB(ctx, db); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	vectors, err := vectorstore.NewStore(cfg.Storage.VectorDBPath, embedder)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	splitter, err := chunk.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(&cfg.ChatLLM)
	return &app{
		cfg:      cfg,
		db:       db,
		vectors:  vectors,
		splitter: splitter,
		rag:      rag.NewService(vectors, client, cfg.RAG.TopK),
		jobs:     ingest.NewService(db, vectors, splitter),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			srv := server.New(a.cfg, a.db, a.vectors, a.rag, a.jobs)
			return srv.ListenAndServe()
		},
	}
}

func ingestCmd() *cobra.Command {
	var (
		filePath  string
		versionID int64
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Re-run ingestion for a document version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			version, err := store.GetVersion(cmd.Context(), a.db, versionID)
			if err != nil {
				return err
			}
			doc := new(store.Document)
			if err := a.db.NewSelect().Model(doc).Where("doc_base_id = ?", version.DocBaseID).Scan(cmd.Context()); err != nil {
				return err
			}
			if filePath == "" {
				filePath = version.StoredFilepath
			}
			if err := a.jobs.RunSync(cmd.Context(), ingest.Job{
				FilePath:  filePath,
				VersionID: version.VersionID,
				DocBaseID: version.DocBaseID,
				ProjectID: doc.ProjectID,
			}); err != nil {
				return err
			}
			log.Info().Int64("version_id", versionID).Msg("ingestion complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Path to the document file (defaults to the stored file)")
	cmd.Flags().Int64Var(&versionID, "version", 0, "Version id to ingest")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		query     string
		versionID int64
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question against an ingested document version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			apiKey, err := store.GetAPIKey(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			if apiKey == "" {
				apiKey = a.cfg.ChatLLM.Key
			}

			answer, err := a.rag.Answer(cmd.Context(), query, versionID, apiKey)
			if err != nil {
				return err
			}

			log.Info().Msg("Query:")
			fmt.Printf("%s\n\n", query)
			log.Info().Msg("Sources:")
			helper.PrettyPrint(answer.Sources)
			log.Info().Msg("Assistant:")
			fmt.Printf("%s\n\n", answer.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Query to be answered")
	cmd.Flags().Int64Var(&versionID, "version", 0, "Version id to query")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func apikeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apikey [value]",
		Short: "Set or inspect the stored LLM API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 1 {
				if err := store.SetAPIKey(cmd.Context(), a.db, args[0]); err != nil {
					return err
				}
				log.Info().Msg("API key updated")
				return nil
			}
			apiKey, err := store.GetAPIKey(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			if apiKey == "" {
				fmt.Println("API key: not configured")
			} else {
				fmt.Println("API key: configured")
			}
			return nil
		},
	}
}
