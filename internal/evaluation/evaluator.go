// Package evaluation measures the input guards against labelled datasets.
package evaluation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const missTextLimit = 200

// Evaluator runs PreProcess over datasets and compares the verdicts with labels
type Evaluator struct {
	pipeline *guardrails.Pipeline
	config   Config
	logger   *zap.Logger
}

// NewEvaluator creates a new evaluator. Zero config fields take the defaults.
func NewEvaluator(p *guardrails.Pipeline, cfg Config, logger *zap.Logger) (*Evaluator, error) {
	if p == nil {
		return nil, errors.New("evaluation requires a pipeline")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = d.WorkerCount
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = d.ProgressReport
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = d.MaxTextLength
	}
	if cfg.MaxMisses < 0 {
		cfg.MaxMisses = 0
	}

	return &Evaluator{pipeline: p, config: cfg, logger: logger}, nil
}

// EvaluateFile evaluates a CSV, JSON lines or Parquet file
func (e *Evaluator) EvaluateFile(ctx context.Context, path string) (*Report, error) {
	format, ok := DetectFileFormat(path)
	if !ok {
		return nil, fmt.Errorf("unsupported file format: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	e.logger.Info("Starting evaluation",
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.Int("batch_size", e.config.BatchSize),
		zap.Int("workers", e.config.WorkerCount))

	return e.EvaluateReader(ctx, file, format)
}

// EvaluateReader evaluates a dataset read from r. Parquet input that is not
// an io.ReaderAt is buffered in memory.
func (e *Evaluator) EvaluateReader(ctx context.Context, r io.Reader, format FileFormat) (*Report, error) {
	report := newReport(e.pipeline)

	var next batchReader
	switch format {
	case FormatCSV:
		var err error
		if next, err = e.csvReader(r, &report.Skipped); err != nil {
			return nil, err
		}
	case FormatJSON:
		next = e.jsonReader(r, &report.Skipped)
	case FormatParquet:
		ra, ok := r.(io.ReaderAt)
		if !ok {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, fmt.Errorf("failed to buffer Parquet input: %w", err)
			}
			ra = bytes.NewReader(data)
		}
		next = e.parquetReader(ra)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}

	if err := e.run(ctx, next, report); err != nil {
		return report, err
	}
	return report, nil
}

// EvaluateRecords evaluates in-memory records
func (e *Evaluator) EvaluateRecords(ctx context.Context, records []Record) (*Report, error) {
	report := newReport(e.pipeline)
	if err := e.run(ctx, e.sliceReader(records), report); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Evaluator) run(ctx context.Context, next batchReader, report *Report) error {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		report.finalize()
	}()

	lastReport := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := next()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		valid := make([]Record, 0, len(batch))
		for _, rec := range batch {
			if e.validRecord(rec) {
				valid = append(valid, rec)
			} else {
				report.Skipped++
			}
		}

		results, err := e.classify(ctx, valid)
		if err != nil {
			return err
		}
		for i, rec := range valid {
			report.add(rec, results[i], e.config.MaxMisses)
		}

		if report.TotalRecords-lastReport >= int64(e.config.ProgressReport) {
			lastReport = report.TotalRecords
			e.reportProgress(report, time.Since(start))
		}
	}

	e.logger.Info("Evaluation completed",
		zap.Int64("total_records", report.TotalRecords),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("true_positives", report.TruePositives),
		zap.Int64("false_positives", report.FalsePositives),
		zap.Int64("false_negatives", report.FalseNegatives),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// classify runs PreProcess on a batch with at most WorkerCount goroutines
func (e *Evaluator) classify(ctx context.Context, batch []Record) ([]guardrails.PreProcessResult, error) {
	results := make([]guardrails.PreProcessResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.WorkerCount)
	for i := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.pipeline.PreProcess(batch[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Evaluator) validRecord(rec Record) bool {
	if rec.Text == "" {
		e.logger.Debug("Invalid record: empty text")
		return false
	}
	if rec.Label != 0 && rec.Label != 1 {
		e.logger.Debug("Invalid record: invalid label", zap.Int("label", rec.Label))
		return false
	}
	if len(rec.Text) > e.config.MaxTextLength {
		e.logger.Debug("Invalid record: text too long", zap.Int("length", len(rec.Text)))
		return false
	}
	return true
}

func (e *Evaluator) reportProgress(report *Report, elapsed time.Duration) {
	e.logger.Info("Evaluation progress",
		zap.Int64("records_processed", report.TotalRecords),
		zap.Int64("skipped", report.Skipped),
		zap.Float64("rate_per_sec", float64(report.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

func newReport(p *guardrails.Pipeline) *Report {
	return &Report{
		CorpusVersion: p.Corpus().Version(),
		Threshold:     p.Config().InjectionThreshold,
		RuleHits:      make(map[string]int64),
		ByLabelText:   make(map[string]*LabelStats),
	}
}

func (r *Report) add(rec Record, pre guardrails.PreProcessResult, maxMisses int) {
	r.TotalRecords++
	detected := pre.Blocked

	switch {
	case rec.Label == 1 && detected:
		r.TruePositives++
	case rec.Label == 0 && detected:
		r.FalsePositives++
	case rec.Label == 0:
		r.TrueNegatives++
	default:
		r.FalseNegatives++
	}

	for _, rule := range pre.Injection.MatchedRules {
		r.RuleHits[rule]++
	}
	if len(pre.PIIFindings) > 0 {
		r.PIIRecords++
	}

	if rec.LabelText != "" {
		ls, ok := r.ByLabelText[rec.LabelText]
		if !ok {
			ls = &LabelStats{}
			r.ByLabelText[rec.LabelText] = ls
		}
		ls.Total++
		if detected {
			ls.Detected++
		}
	}

	if detected != (rec.Label == 1) && len(r.Misses) < maxMisses {
		r.Misses = append(r.Misses, Miss{
			Text:         truncate(pre.SanitisedText, missTextLimit),
			Label:        rec.Label,
			Score:        pre.Injection.Score,
			MatchedRules: pre.Injection.MatchedRules,
		})
	}
}

func (r *Report) finalize() {
	r.Precision = ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
	r.Recall = ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	r.Accuracy = ratio(r.TruePositives+r.TrueNegatives, r.TotalRecords)
}

// TopRules returns rule ids ordered by hit count, then id
func (r *Report) TopRules() []string {
	ids := make([]string, 0, len(r.RuleHits))
	for id := range r.RuleHits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if r.RuleHits[ids[i]] != r.RuleHits[ids[j]] {
			return r.RuleHits[ids[i]] > r.RuleHits[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
