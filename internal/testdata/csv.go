// Package testdata resolves per-run test data files into key→value pairs
// for the scoped secret tier.
package testdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports a data file that does not exist, as opposed to one
// that exists but holds no rows.
var ErrNotFound = errors.New("test data file not found")

// Load reads a CSV test-data file. Two shapes are accepted:
//
//	key,value          Username,alice
//	                   Password,hunter2
//
//	Username,Password  alice,hunter2
//
// The first is explicit key/value rows (an optional "key,value" header row
// is skipped); the second is a header row transposed against a single data
// row.
func Load(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open test data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse test data %s: %w", path, err)
	}
	if len(records) == 0 {
		return map[string]string{}, nil
	}

	if isKeyValueHeader(records[0]) {
		records = records[1:]
	}

	// Header + single data row: transpose columns into pairs.
	if len(records) == 2 && len(records[0]) > 2 && len(records[0]) == len(records[1]) {
		values := make(map[string]string, len(records[0]))
		for i, key := range records[0] {
			values[strings.TrimSpace(key)] = strings.TrimSpace(records[1][i])
		}
		return values, nil
	}

	values := make(map[string]string, len(records))
	for i, row := range records {
		if len(row) < 2 {
			return nil, fmt.Errorf("test data %s row %d: want key,value, got %d fields", path, i+1, len(row))
		}
		values[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
	}
	return values, nil
}

func isKeyValueHeader(row []string) bool {
	return len(row) == 2 &&
		strings.EqualFold(strings.TrimSpace(row[0]), "key") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "value")
}

// IsProductionPath guesses whether a data file belongs to the production
// environment from its filename. This is a fragile substring check kept
// for compatibility; ambiguous filenames ("reproduce.csv") will match.
func IsProductionPath(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.Contains(name, "prod")
}
