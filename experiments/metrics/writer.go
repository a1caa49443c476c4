// Package metrics records tuning runs for offline analysis.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TuneRecord is one tuned kernel's outcome.
type TuneRecord struct {
	Kernel   string
	Rollouts int
	Prunes   int
	CacheHit bool
	BestUS   float64
	Duration time.Duration
}

type Writer struct {
	baseDir string
}

func NewWriter(dir string) (*Writer, error) {
	// Create a subfolder named by current timestamp
	timestamp := time.Now().UTC().Format(time.RFC3339)
	baseDir := filepath.Join(dir, timestamp)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		baseDir: baseDir,
	}, nil
}

// Dir returns the directory reports are written into.
func (w *Writer) Dir() string {
	return w.baseDir
}

func (w *Writer) WriteTuneRecords(records []TuneRecord) error {
	path := filepath.Join(w.baseDir, "tunings.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create tunings file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := []string{"kernel", "rollouts", "prunes", "cache_hit", "best_us", "duration_ms"}
	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write tunings header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Kernel,
			strconv.Itoa(r.Rollouts),
			strconv.Itoa(r.Prunes),
			strconv.FormatBool(r.CacheHit),
			strconv.FormatFloat(r.BestUS, 'f', 2, 64),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
		}
		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write tune record: %w", err)
		}
	}
	return writer.Error()
}
