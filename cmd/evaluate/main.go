package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/raaihank/llm-guardrails/internal/evaluation"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"github.com/raaihank/llm-guardrails/internal/logger"
	"github.com/raaihank/llm-guardrails/internal/rulestore"
	"github.com/raaihank/llm-guardrails/internal/server"
)

func main() {
	defaults := evaluation.DefaultConfig()

	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Labelled dataset (CSV, JSON lines, or Parquet)")
		batchSize  = flag.Int("batch-size", defaults.BatchSize, "Records read per batch")
		workers    = flag.Int("workers", defaults.WorkerCount, "Number of worker goroutines")
		threshold  = flag.Float64("threshold", -1, "Override the injection threshold (negative keeps the configured one)")
		maxMisses  = flag.Int("misses", defaults.MaxMisses, "Misclassified examples to include in the report")
		format     = flag.String("format", "text", "Report format: text or json")
		output     = flag.String("output", "", "Write the report to a file instead of stdout")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --workers 8 --format json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input prompts.jsonl --threshold 0.7\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *threshold >= 0 {
		cfg.Guardrails.InjectionThreshold = *threshold
	}

	// Logs go to stderr so the report can be piped
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to build pipeline", zap.Error(err))
	}

	evaluator, err := evaluation.NewEvaluator(pipeline, evaluation.Config{
		BatchSize:      *batchSize,
		WorkerCount:    *workers,
		ProgressReport: defaults.ProgressReport,
		MaxTextLength:  defaults.MaxTextLength,
		MaxMisses:      *maxMisses,
	}, log.WithComponent("evaluation").Logger)
	if err != nil {
		log.Fatal("Failed to create evaluator", zap.Error(err))
	}

	report, err := evaluator.EvaluateFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Evaluation failed", zap.Error(err))
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal("Failed to create report file", zap.Error(err))
		}
		defer f.Close()
		out = f
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(report)
	default:
		printReport(out, report)
	}
	if err != nil {
		log.Fatal("Failed to write report", zap.Error(err))
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*guardrails.Pipeline, error) {
	defs := corpus.DefaultDefinitions()

	if cfg.RuleStore.Enabled {
		store, err := rulestore.NewStore(cfg.RuleStore, log.WithComponent("rulestore").Logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		stored, err := store.LoadDefinitions(ctx)
		if err != nil {
			return nil, err
		}
		defs = append(defs, stored...)
	}

	c, err := corpus.New(defs...)
	if err != nil {
		return nil, err
	}

	return guardrails.New(server.PipelineConfig(cfg.Guardrails),
		guardrails.WithCorpus(c),
		guardrails.WithLogger(log.WithComponent("guardrails").Logger),
	)
}

func printReport(w io.Writer, r *evaluation.Report) {
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}

	p("\n=== LLM-Guardrails Injection Evaluation ===\n")
	p("Corpus Version:     %s\n", r.CorpusVersion)
	p("Threshold:          %.2f\n", r.Threshold)
	p("Records:            %d (skipped %d)\n", r.TotalRecords, r.Skipped)
	p("Duration:           %v\n", r.Duration)

	p("\n=== Confusion Matrix ===\n")
	p("True Positives:     %d\n", r.TruePositives)
	p("False Positives:    %d\n", r.FalsePositives)
	p("True Negatives:     %d\n", r.TrueNegatives)
	p("False Negatives:    %d\n", r.FalseNegatives)

	p("\n=== Scores ===\n")
	p("Precision:          %.4f\n", r.Precision)
	p("Recall:             %.4f\n", r.Recall)
	p("F1:                 %.4f\n", r.F1)
	p("Accuracy:           %.4f\n", r.Accuracy)
	p("Inputs with PII:    %d\n", r.PIIRecords)

	if len(r.RuleHits) > 0 {
		p("\n=== Rule Hits ===\n")
		for _, id := range r.TopRules() {
			p("%-24s %d\n", id, r.RuleHits[id])
		}
	}

	if len(r.ByLabelText) > 0 {
		p("\n=== By Label ===\n")
		labels := make([]string, 0, len(r.ByLabelText))
		for label := range r.ByLabelText {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			s := r.ByLabelText[label]
			p("%-24s %d/%d detected\n", label, s.Detected, s.Total)
		}
	}

	if len(r.Misses) > 0 {
		p("\n=== Misclassified Examples ===\n")
		for _, m := range r.Misses {
			p("[label=%d score=%.3f] %s\n", m.Label, m.Score, m.Text)
		}
	}
}
