// Command coursechat runs the course-scoped Q&A server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/campusify/coursechat/internal/adapters/discord"
	"github.com/campusify/coursechat/internal/adapters/embedding"
	"github.com/campusify/coursechat/internal/adapters/filewatcher"
	"github.com/campusify/coursechat/internal/adapters/llm"
	"github.com/campusify/coursechat/internal/adapters/loader"
	"github.com/campusify/coursechat/internal/adapters/parser"
	"github.com/campusify/coursechat/internal/adapters/storage"
	"github.com/campusify/coursechat/internal/config"
	"github.com/campusify/coursechat/internal/domain/ports"
	"github.com/campusify/coursechat/internal/domain/usecases"
	httpserver "github.com/campusify/coursechat/internal/infrastructure/http"
)

// store is what both storage backends provide.
type store interface {
	ports.SessionStore
	ports.MaterialCatalog
	Ping(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file (defaults apply if missing)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] Loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Println("[INFO] Shut down cleanly")
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	db, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	pdf := parser.NewPythonPDFParser(cfg.PDFService.URL, config.Seconds(cfg.PDFService.TimeoutSecs))
	if cfg.PDFService.AutoStart {
		stop, err := pdf.StartService(ctx, cfg.PDFService.Python, cfg.PDFService.ScriptDir, config.Seconds(cfg.PDFService.TimeoutSecs))
		if err != nil {
			return err
		}
		defer stop()
	} else if !pdf.IsServiceHealthy(ctx) {
		log.Printf("[WARN] PDF service at %s is not reachable; PDF documents will be skipped", cfg.PDFService.URL)
	}

	extractor := loader.NewExtractor(loader.Options{
		PublicBaseURL: cfg.Catalog.PublicBaseURL,
		UploadsDir:    cfg.Catalog.UploadsDir,
		MaxBytes:      cfg.Chat.MaxDocumentSizeMB << 20,
		Timeout:       config.Seconds(cfg.Chat.ExtractTimeoutSecs),
	}, pdf, parser.NewTextParser())
	for _, ext := range unparsedExtensions(extractor.SupportedExtensions(), cfg.Catalog.Extensions) {
		log.Printf("[WARN] No parser handles catalog extension %s; those files will be skipped when answering", ext)
	}

	keywords := append(append([]string{}, usecases.DefaultProhibitedKeywords...), cfg.Chat.ExtraKeywords...)
	sessionUC := usecases.NewSessionUseCase(db, db)
	chatUC := usecases.NewChatUseCase(
		db,
		extractor,
		usecases.NewRanker(embedder, cfg.Chat.TopK, cfg.Embedder.MaxParallel),
		completer,
		usecases.NewKeywordPolicy(keywords),
		usecases.ChatOptions{
			SystemPrompt:   cfg.Chat.SystemPrompt,
			RefusalMessage: cfg.Chat.RefusalMessage,
		},
	)

	if err := os.MkdirAll(cfg.Catalog.UploadsDir, 0755); err != nil {
		return fmt.Errorf("creating uploads dir: %w", err)
	}
	catalogUC := usecases.NewCatalogUseCase(db, cfg.Catalog.UploadsDir, cfg.Catalog.Extensions)
	if cfg.Catalog.SyncOnStart {
		if _, err := catalogUC.Sync(ctx); err != nil {
			return err
		}
	}
	if cfg.Catalog.Watch {
		watcher, err := filewatcher.NewFSNotifyWatcher(cfg.Catalog.Extensions)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Stop()

		events, err := watcher.Watch(ctx, cfg.Catalog.UploadsDir)
		if err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Catalog.UploadsDir, err)
		}
		go catalogUC.Run(ctx, events)
		log.Printf("[INFO] Watching %s for course material", cfg.Catalog.UploadsDir)
	}

	if cfg.Discord.Enabled {
		bot, err := discord.NewBot(cfg.DiscordToken(), cfg.Discord.Prefix, config.Seconds(cfg.Chat.AskTimeoutSecs), sessionUC, chatUC)
		if err != nil {
			return err
		}
		if err := bot.Start(); err != nil {
			return err
		}
		defer bot.Stop()
	}

	server := httpserver.NewServer(sessionUC, chatUC, catalogUC, db, httpserver.Options{
		Addr:            cfg.Server.Addr,
		UploadsDir:      cfg.Catalog.UploadsDir,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     config.Seconds(cfg.Server.RequestTimeout),
		AskTimeout:      config.Seconds(cfg.Chat.AskTimeoutSecs),
		ShutdownTimeout: config.Seconds(cfg.Server.ShutdownTimeout),
		MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
	})
	return server.Start(ctx)
}

func openStore(cfg *config.AppConfig) (store, func(), error) {
	switch cfg.Sessions.Driver {
	case "memory":
		log.Println("[WARN] Using in-memory store; sessions are lost on restart")
		return storage.NewInMemoryStore(cfg.Catalog.PublicBaseURL), func() {}, nil
	default:
		db, err := storage.NewSQLiteStore(cfg.Sessions.DataPath, cfg.Catalog.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		count, err := db.SessionCount(context.Background())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("counting sessions: %w", err)
		}
		log.Printf("[INFO] SQLite store at %s (%d sessions)", cfg.Sessions.DataPath, count)
		return db, func() { db.Close() }, nil
	}
}

func newEmbedder(cfg *config.AppConfig) (ports.EmbeddingService, error) {
	var (
		base  ports.EmbeddingService
		model string
	)
	switch cfg.Embedder.Provider {
	case "ollama":
		a := embedding.NewOllamaAdapter(cfg.Ollama.BaseURL, cfg.Embedder.Model)
		base, model = a, a.Model()
	default:
		a, err := embedding.NewOpenAIAdapter(embedding.OpenAIConfig{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAIKey(),
			Model:      cfg.Embedder.Model,
			Timeout:    config.Seconds(cfg.OpenAI.TimeoutSecs),
			MaxRetries: cfg.Embedder.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		base, model = a, a.Model()
	}
	log.Printf("[INFO] Embeddings: %s (%s)", cfg.Embedder.Provider, model)

	if !cfg.Embedder.Cache {
		return base, nil
	}
	cached, err := embedding.NewCachedEmbedder(base, cfg.Embedder.Provider+"/"+model, cfg.Embedder.CachePath)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Embedding cache ready (%d entries)", cached.Len())
	return cached, nil
}

// unparsedExtensions returns the catalog extensions no registered parser can read.
func unparsedExtensions(supported, wanted []string) []string {
	known := make(map[string]bool, len(supported))
	for _, ext := range supported {
		known[ext] = true
	}
	var missing []string
	for _, ext := range wanted {
		norm := strings.ToLower(ext)
		if !strings.HasPrefix(norm, ".") {
			norm = "." + norm
		}
		if !known[norm] {
			missing = append(missing, ext)
		}
	}
	return missing
}

func newCompleter(cfg *config.AppConfig) (ports.CompletionService, error) {
	log.Printf("[INFO] Generation: %s (%s)", cfg.Generator.Provider, cfg.Generator.Model)
	switch cfg.Generator.Provider {
	case "ollama":
		return llm.NewOllamaLLMAdapter(llm.OllamaConfig{
			BaseURL:     cfg.Ollama.BaseURL,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
			Timeout:     config.Seconds(cfg.Chat.AskTimeoutSecs),
		}), nil
	default:
		c, err := llm.NewOpenAIChatAdapter(llm.OpenAIConfig{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKey:      cfg.OpenAIKey(),
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
			Timeout:     config.Seconds(cfg.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator: %w", err)
		}
		return c, nil
	}
}
