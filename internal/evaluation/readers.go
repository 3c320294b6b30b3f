package evaluation

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// batchReader returns the next batch, or an empty batch at end of input
type batchReader func() ([]Record, error)

// csvReader maps columns by header name; label_text is optional
func (e *Evaluator) csvReader(r io.Reader, skipped *int64) (batchReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0 // every row must match the header width

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := map[string]int{"text": -1, "label_text": -1, "label": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := columns[name]; ok {
			columns[name] = i
		}
	}
	if columns["text"] < 0 || columns["label"] < 0 {
		return nil, fmt.Errorf("CSV header %v must contain text and label columns", header)
	}
	e.logger.Info("CSV header detected", zap.Strings("columns", header))

	return func() ([]Record, error) {
		var batch []Record
		for len(batch) < e.config.BatchSize {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
					e.logger.Warn("Skipping CSV row", zap.Error(err))
					*skipped++
					continue
				}
				return nil, fmt.Errorf("failed to read CSV record: %w", err)
			}

			label, ok := parseLabel(row[columns["label"]])
			if !ok {
				e.logger.Debug("Skipping CSV row with invalid label", zap.String("label", row[columns["label"]]))
				*skipped++
				continue
			}

			rec := Record{Text: strings.TrimSpace(row[columns["text"]]), Label: label}
			if i := columns["label_text"]; i >= 0 {
				rec.LabelText = strings.TrimSpace(row[i])
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}, nil
}

// jsonReader reads one JSON object per line
func (e *Evaluator) jsonReader(r io.Reader, skipped *int64) batchReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0

	return func() ([]Record, error) {
		var batch []Record
		for len(batch) < e.config.BatchSize && scanner.Scan() {
			line++
			raw := strings.TrimSpace(scanner.Text())
			if raw == "" {
				continue
			}

			var rec Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				e.logger.Warn("Skipping JSON line", zap.Int("line", line), zap.Error(err))
				*skipped++
				continue
			}
			batch = append(batch, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read JSON lines: %w", err)
		}
		return batch, nil
	}
}

func (e *Evaluator) parquetReader(r io.ReaderAt) batchReader {
	reader := parquet.NewReader(r)
	done := false

	return func() ([]Record, error) {
		var batch []Record
		for !done && len(batch) < e.config.BatchSize {
			var rec Record
			err := reader.Read(&rec)
			if errors.Is(err, io.EOF) {
				done = true
				reader.Close()
				break
			}
			if err != nil {
				done = true
				reader.Close()
				return nil, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

// sliceReader serves in-memory records in batches
func (e *Evaluator) sliceReader(records []Record) batchReader {
	return func() ([]Record, error) {
		n := e.config.BatchSize
		if n > len(records) {
			n = len(records)
		}
		batch := records[:n]
		records = records[n:]
		return batch, nil
	}
}

func parseLabel(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return 1, true
	case "0", "false":
		return 0, true
	default:
		return 0, false
	}
}
