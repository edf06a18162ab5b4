// Package export writes snapshot artifacts to disk as CSV files, one set
// per review date.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"rsidesk/internal/models"
)

// topN is how many symbols the lowest/highest artifacts keep.
const topN = 20

type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// WriteSnapshotArtifacts writes three files for one snapshot date: the full
// set, the lowest-RSI symbols and the highest-RSI symbols. Symbols without
// an RSI value appear only in the full file. Returns the paths written.
func (e *Exporter) WriteSnapshotArtifacts(date string, snaps []models.RsiSnapshot) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	withRSI := make([]models.RsiSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.RSI != nil {
			withRSI = append(withRSI, s)
		}
	}

	byRSIAsc := make([]models.RsiSnapshot, len(withRSI))
	copy(byRSIAsc, withRSI)
	sort.SliceStable(byRSIAsc, func(i, j int) bool { return *byRSIAsc[i].RSI < *byRSIAsc[j].RSI })

	byRSIDesc := make([]models.RsiSnapshot, len(withRSI))
	copy(byRSIDesc, withRSI)
	sort.SliceStable(byRSIDesc, func(i, j int) bool { return *byRSIDesc[i].RSI > *byRSIDesc[j].RSI })

	files := []struct {
		name string
		rows []models.RsiSnapshot
	}{
		{date + "-rsi_full.csv", snaps},
		{date + "-rsi_lowest.csv", head(byRSIAsc, topN)},
		{date + "-rsi_highest.csv", head(byRSIDesc, topN)},
	}

	var paths []string
	for _, f := range files {
		path := filepath.Join(e.dir, f.name)
		if err := writeSnapshotCSV(path, f.rows); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeSnapshotCSV(path string, rows []models.RsiSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "symbol", "rsi", "price"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, s := range rows {
		rsi := ""
		if s.RSI != nil {
			rsi = strconv.FormatFloat(*s.RSI, 'f', 2, 64)
		}
		record := []string{
			s.SnapshotDate,
			s.Symbol,
			rsi,
			strconv.FormatFloat(s.Price, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row for %s: %w", s.Symbol, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func head(snaps []models.RsiSnapshot, n int) []models.RsiSnapshot {
	if len(snaps) > n {
		return snaps[:n]
	}
	return snaps
}
