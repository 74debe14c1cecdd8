package collect

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// WorkList supplies the ticker symbols for a collection cycle
type WorkList interface {
	Tickers(ctx context.Context) ([]string, error)
}

// CSVWorkList reads symbols from a CSV file with a Symbol column
type CSVWorkList struct {
	path string
}

// NewCSVWorkList creates a CSV-backed work list
func NewCSVWorkList(path string) *CSVWorkList {
	return &CSVWorkList{path: path}
}

// Tickers returns the upper-cased symbols from the file, duplicates
// removed so no two workers ever share a ticker within a cycle
func (l *CSVWorkList) Tickers(_ context.Context) ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ticker list: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ticker list: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ticker list %s is empty", l.path)
	}

	symbolCol := -1
	for i, header := range records[0] {
		if strings.EqualFold(strings.TrimSpace(header), "symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("ticker list %s has no Symbol column", l.path)
	}

	seen := make(map[string]struct{})
	var symbols []string
	for _, row := range records[1:] {
		if symbolCol >= len(row) {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(row[symbolCol]))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}

	return symbols, nil
}
