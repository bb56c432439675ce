package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oraculo-ai/oraculo/api"
	"github.com/oraculo-ai/oraculo/chat"
	"github.com/oraculo-ai/oraculo/config"
	"github.com/oraculo-ai/oraculo/database"
	"github.com/oraculo-ai/oraculo/embeddings"
	"github.com/oraculo-ai/oraculo/ingest"
	"github.com/oraculo-ai/oraculo/llm"
	"github.com/oraculo-ai/oraculo/training"
	"github.com/oraculo-ai/oraculo/vecindex"
	"github.com/oraculo-ai/oraculo/whatsapp"
)

// indexSeed is the sentence embedded by init-index so a brand new deployment
// has a loadable index before the first training record arrives.
const indexSeed = "Oraculo knowledge base initialized."

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger)
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "reprocess":
		reprocessCmd(cfg, logger, os.Args[2:])
	case "init-index":
		initIndexCmd(cfg, logger)
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Error("unknown command", zap.String("command", os.Args[1]))
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection", zap.Error(err))
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("embedder setup", zap.Error(err))
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatal("llm setup", zap.Error(err))
	}

	trainings := training.NewPostgresRepository(pool)
	extractor := training.NewExtractor(logger)
	ingestSvc := ingest.NewService(trainings, extractor, embedder, cfg.IndexDir, logger)

	queue, err := ingest.NewQueue(ingestSvc, cfg.Ingest.Workers, logger)
	if err != nil {
		logger.Fatal("queue setup", zap.Error(err))
	}
	defer queue.Release()

	chatRepo := chat.NewPostgresRepository(pool)
	chatSvc := chat.NewService(chatRepo, embedder, llmClient, cfg.IndexDir, logger)

	sender := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIKeys, logger)
	window := time.Duration(cfg.WhatsApp.DebounceSeconds) * time.Second
	buffer := whatsapp.NewBuffer(window, func(phone, question string) {
		answerCtx, answerCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer answerCancel()

		answer, _ := chatSvc.Answer(answerCtx, question, nil)
		if err := sender.SendText(answerCtx, cfg.WhatsApp.Instance, phone, answer); err != nil {
			logger.Error("failed to deliver answer",
				zap.String("phone", phone),
				zap.Error(err))
		}
	}, logger)
	defer buffer.Stop()

	server := api.NewServer(trainings, queue, chatSvc, chatRepo, buffer, logger)
	if err := server.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
}

func ingestCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	rawID := flags.String("id", "", "training record id to ingest")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse ingest flags", zap.Error(err))
	}

	id, err := uuid.Parse(*rawID)
	if err != nil {
		logger.Fatal("ingest requires a valid --id", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection", zap.Error(err))
	}
	defer pool.Close()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("embedder setup", zap.Error(err))
	}

	trainings := training.NewPostgresRepository(pool)
	svc := ingest.NewService(trainings, training.NewExtractor(logger), embedder, cfg.IndexDir, logger)

	if err := svc.IngestByID(ctx, id); err != nil {
		logger.Fatal("ingestion failed", zap.String("record_id", id.String()), zap.Error(err))
	}
	logger.Info("record ingested", zap.String("record_id", id.String()))
}

func reprocessCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("reprocess", flag.ExitOnError)
	clearFirst := flags.Bool("clear", false, "remove the index directory before reprocessing")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse reprocess flags", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection", zap.Error(err))
	}
	defer pool.Close()

	if *clearFirst {
		if err := vecindex.Remove(cfg.IndexDir); err != nil {
			logger.Fatal("remove index", zap.Error(err))
		}
		logger.Info("index artifacts removed", zap.String("dir", cfg.IndexDir))
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("embedder setup", zap.Error(err))
	}

	trainings := training.NewPostgresRepository(pool)
	svc := ingest.NewService(trainings, training.NewExtractor(logger), embedder, cfg.IndexDir, logger)

	processed, err := svc.Reprocess(ctx)
	if err != nil {
		logger.Fatal("reprocess failed", zap.Error(err))
	}
	logger.Info("reprocess finished", zap.Int("records", processed))
}

func initIndexCmd(cfg config.Config, logger *zap.Logger) {
	if vecindex.Exists(cfg.IndexDir) {
		logger.Info("index already present", zap.String("dir", cfg.IndexDir))
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("embedder setup", zap.Error(err))
	}

	ix, err := buildSeedIndex(ctx, embedder, cfg.IndexDir)
	if err != nil {
		logger.Fatal("initialize index", zap.Error(err))
	}

	logger.Info("index initialized",
		zap.String("dir", cfg.IndexDir),
		zap.Int("dimension", ix.Dimension()))
}

func buildSeedIndex(ctx context.Context, embedder embeddings.Embedder, dir string) (*vecindex.Index, error) {
	vectors, err := embedder.Embed(ctx, []string{indexSeed})
	if err != nil {
		return nil, fmt.Errorf("embed seed sentence: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	ix, err := vecindex.New([]vecindex.Entry{{
		Vector: vectors[0],
		Text:   indexSeed,
		Source: "init",
	}})
	if err != nil {
		return nil, fmt.Errorf("build seed index: %w", err)
	}
	if err := vecindex.Save(ix, dir); err != nil {
		return nil, fmt.Errorf("persist seed index: %w", err)
	}
	return ix, nil
}

func clearCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse clear flags", zap.Error(err))
	}

	if !*confirmed {
		fmt.Printf("This will permanently delete the index artifacts in %s. Continue? [y/N]: ", cfg.IndexDir)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatal("read confirmation", zap.Error(err))
			}
			logger.Info("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Info("clear aborted")
			return
		}
	}

	if err := vecindex.Remove(cfg.IndexDir); err != nil {
		logger.Fatal("remove index", zap.Error(err))
	}
	logger.Info("index artifacts removed", zap.String("dir", cfg.IndexDir))
}

func printUsage() {
	fmt.Println("Usage: oraculo <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve       Run the HTTP server (webhook, training intake, chat)")
	fmt.Println("  ingest      Ingest one training record synchronously (--id)")
	fmt.Println("  reprocess   Re-run ingestion for every stored record (--clear to rebuild from scratch)")
	fmt.Println("  init-index  Create an initial index from a seed sentence")
	fmt.Println("  clear       Remove the persisted index artifacts (--confirm)")
}
