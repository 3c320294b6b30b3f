package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/raaihank/llm-guardrails/internal/logger"
	"github.com/raaihank/llm-guardrails/internal/rulestore"
	"github.com/raaihank/llm-guardrails/internal/server"
	"github.com/raaihank/llm-guardrails/internal/stats"
	"go.uber.org/zap"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "URL used by -health-check")
		importRules = flag.String("import-rules", "", "Write rules from a YAML/JSON file to the rule store and exit")
		resetStats  = flag.Bool("reset-stats", false, "Delete all detection counters and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("LLM-Guardrails %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *importRules != "":
		if err := runImport(ctx, cfg, log, *importRules); err != nil {
			log.Fatal("Rule import failed", zap.Error(err))
		}
		return
	case *resetStats:
		if err := runResetStats(ctx, cfg, log); err != nil {
			log.Fatal("Resetting detection counters failed", zap.Error(err))
		}
		return
	}

	log.Info("Starting LLM-Guardrails",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFile()),
	)

	var opts []server.Option

	if cfg.RuleStore.Enabled {
		defs, err := loadStoredRules(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to load stored rules", zap.Error(err))
		}
		opts = append(opts, server.WithRuleDefinitions(defs))
	}

	if cfg.Stats.Enabled {
		counter, err := stats.NewCounter(cfg.Stats, log.WithComponent("stats").Logger)
		if err != nil {
			log.Warn("Detection counters unavailable, continuing without them", zap.Error(err))
		} else {
			defer counter.Close()
			opts = append(opts, server.WithStats(counter))
		}
	}

	srv, err := server.New(cfg, log, opts...)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if loader.ConfigFile() != "" {
		loader.Watch(func(newCfg *config.Config) {
			log.Info("Configuration file changed, rebuilding pipeline")
			_ = srv.Reload(newCfg)
		}, func(err error) {
			log.Warn("Configuration change rejected", zap.Error(err))
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// loadStoredRules reads the enabled rule rows once; the connection is not kept
func loadStoredRules(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]corpus.Definition, error) {
	store, err := rulestore.NewStore(cfg.RuleStore, log.WithComponent("rulestore").Logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.RuleStore.Timeout)
	defer cancel()
	return store.LoadDefinitions(loadCtx)
}

func runImport(ctx context.Context, cfg *config.Config, log *logger.Logger, path string) error {
	defs, err := rulestore.ReadDefinitionsFile(path)
	if err != nil {
		return err
	}

	store, err := rulestore.NewStore(cfg.RuleStore, log.WithComponent("rulestore").Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.Upsert(ctx, defs)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rules from %s in %v\n", result.Written, path, result.Duration.Round(time.Millisecond))
	return nil
}

func runResetStats(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	counter, err := stats.NewCounter(cfg.Stats, log.WithComponent("stats").Logger)
	if err != nil {
		return err
	}
	defer counter.Close()

	if err := counter.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Detection counters reset")
	return nil
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
