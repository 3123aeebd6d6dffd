package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LoadCatalog reads an element file into a catalog whose source is path.
// A file without a single valid set is an error.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	sets, err := ParseCatalog(f, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: %w: no valid element sets", path, ErrMalformedRecord)
	}
	return NewCatalog(path, sets, time.Now()), nil
}

// ParseCatalog reads a stream of element records, with or without name
// lines, and returns the valid ones in input order.
// Malformed entries are skipped with a warning log, never corrected.
func ParseCatalog(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []ElementSet
	for i := 0; i < len(lines); {
		name := ""
		if !isElementLine(lines[i], '1') {
			name = lines[i]
			i++
		}
		if i+1 >= len(lines) {
			logger.Warn("skipping truncated TLE entry", "line_index", i, "name", nameOf(name))
			break
		}
		if !isElementLine(lines[i], '1') {
			// Two name-like lines in a row; the second may start the next entry.
			logger.Warn("skipping TLE entry without element lines", "line_index", i-1, "name", nameOf(name))
			continue
		}
		if !isElementLine(lines[i+1], '2') {
			logger.Warn("skipping TLE entry with missing line 2", "line_index", i, "name", nameOf(name))
			i++
			continue
		}

		es, err := ParseLines(name, lines[i], lines[i+1])
		i += 2
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "name", nameOf(name), "error", err)
			continue
		}
		sets = append(sets, es)
	}

	return sets, nil
}

func isElementLine(line string, n byte) bool {
	return len(line) >= 2 && line[0] == n && line[1] == ' '
}
