// Package universe loads the watchlist of tradable symbols and their
// sector classification from a CSV file.
package universe

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Universe is the symbol watchlist. Sector data is optional per symbol; a
// missing sector disables the sector exposure check for that symbol only.
type Universe struct {
	symbols []string
	sectors map[string]string
}

// Load reads a CSV with a header row. The Symbol column is required; a
// Sector column is used when present. Column order does not matter.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open universe file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse universe csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("universe file %s has no symbols", path)
	}

	symbolCol, sectorCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "symbol", "ticker":
			symbolCol = i
		case "sector":
			sectorCol = i
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("universe file %s has no Symbol column", path)
	}

	u := &Universe{sectors: make(map[string]string)}
	seen := make(map[string]bool)
	for _, row := range records[1:] {
		if symbolCol >= len(row) {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(row[symbolCol]))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		u.symbols = append(u.symbols, symbol)

		if sectorCol >= 0 && sectorCol < len(row) {
			if sector := strings.TrimSpace(row[sectorCol]); sector != "" {
				u.sectors[symbol] = sector
			}
		}
	}
	if len(u.symbols) == 0 {
		return nil, fmt.Errorf("universe file %s has no symbols", path)
	}
	sort.Strings(u.symbols)
	return u, nil
}

// Symbols returns the watchlist, sorted ascending.
func (u *Universe) Symbols() []string {
	return u.symbols
}

// Sector resolves a symbol's sector. ok=false means unclassified.
func (u *Universe) Sector(symbol string) (string, bool) {
	sector, ok := u.sectors[strings.ToUpper(symbol)]
	return sector, ok
}

// Contains reports whether symbol is in the watchlist.
func (u *Universe) Contains(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	for _, s := range u.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
