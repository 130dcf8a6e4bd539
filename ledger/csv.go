package ledger

import (
	"bufio"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var csvCols = []string{
	"completed_at", "item", "title", "url",
	"target_price", "final_price", "proof_path", "notified",
}

// CSVSink appends entries to a CSV file and fsyncs after each append.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ensureCSVHeader(s.path); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	w := csv.NewWriter(bufw)
	rec := []string{
		e.CompletedAt.UTC().Format(time.RFC3339),
		e.Item,
		e.Title,
		e.URL,
		e.Target.StringFixed(2),
		e.Price.StringFixed(2),
		e.ProofPath,
		strconv.FormatBool(e.Notified),
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := bufw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// ensureCSVHeader creates the file with a UTF-8 BOM and the header row when
// it is missing or empty.
func ensureCSVHeader(path string) error {
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	// BOM keeps Excel on UTF-8 (deck titles and the euro sign).
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvCols); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
