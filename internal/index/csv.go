package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

var csvHeader = []string{"timestamp", "url"}

// WriteCSV writes records with a "timestamp,url" header row.
func WriteCSV(w io.Writer, records []archive.IndexRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Timestamp, rec.URL}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV reads records written by WriteCSV. A leading "timestamp,url"
// header is skipped; indices in the result count data rows only.
func ReadCSV(r io.Reader) ([]archive.IndexRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []archive.IndexRecord
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if first {
			first = false
			if len(row) >= 2 && row[0] == csvHeader[0] && row[1] == csvHeader[1] {
				continue
			}
		}
		if len(row) < 2 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("read csv: line %d has %d fields", line, len(row))
		}
		out = append(out, archive.IndexRecord{Timestamp: row[0], URL: row[1]})
	}
	return out, nil
}

// WriteCSVFile writes records to path, creating parent directories.
func WriteCSVFile(path string, records []archive.IndexRecord) (err error) {
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o750); mkErr != nil {
		return fmt.Errorf("create csv dir: %w", mkErr)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv %s: %w", path, cerr)
		}
	}()
	return WriteCSV(f, records)
}

// ReadCSVFile reads records from path.
func ReadCSVFile(path string) ([]archive.IndexRecord, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}
