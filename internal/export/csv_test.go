package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsidesk/internal/models"
)

func rsiPtr(v float64) *float64 { return &v }

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteSnapshotArtifacts(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "out"))

	snaps := []models.RsiSnapshot{
		{SnapshotDate: "2026-08-28", Symbol: "AAA", RSI: rsiPtr(55), Price: 100},
		{SnapshotDate: "2026-08-28", Symbol: "BBB", RSI: rsiPtr(18), Price: 50},
		{SnapshotDate: "2026-08-28", Symbol: "CCC", RSI: nil, Price: 25},
		{SnapshotDate: "2026-08-28", Symbol: "DDD", RSI: rsiPtr(82), Price: 75},
	}

	paths, err := e.WriteSnapshotArtifacts("2026-08-28", snaps)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	full := readCSV(t, filepath.Join(dir, "out", "2026-08-28-rsi_full.csv"))
	assert.Equal(t, []string{"date", "symbol", "rsi", "price"}, full[0])
	assert.Len(t, full, 5)
	assert.Equal(t, "", full[3][2], "missing RSI stays blank in the full file")

	lowest := readCSV(t, filepath.Join(dir, "out", "2026-08-28-rsi_lowest.csv"))
	require.Len(t, lowest, 4, "symbols without RSI are excluded from the ranked files")
	assert.Equal(t, "BBB", lowest[1][1])
	assert.Equal(t, "AAA", lowest[2][1])
	assert.Equal(t, "DDD", lowest[3][1])

	highest := readCSV(t, filepath.Join(dir, "out", "2026-08-28-rsi_highest.csv"))
	assert.Equal(t, "DDD", highest[1][1])
}

func TestWriteSnapshotArtifactsEmptySet(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir)

	paths, err := e.WriteSnapshotArtifacts("2026-08-28", nil)
	require.NoError(t, err)
	for _, p := range paths {
		rows := readCSV(t, p)
		assert.Len(t, rows, 1, "header only")
	}
}
