// Package record loads line-delimited JSON plan records.
package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const maxLineBytes = 64 << 20

// Entry is one parsed line of a JSONL file.
type Entry struct {
	Line int
	Raw  json.RawMessage
}

// Load reads one JSON value per line from path. Blank lines are skipped
// silently; lines that are not valid JSON are logged and skipped.
func Load(path string, logger *slog.Logger) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only input.
			_ = cerr
		}
	}()
	return Read(file, logger)
}

// Read is Load over an arbitrary reader.
func Read(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			var probe any
			err := json.Unmarshal([]byte(line), &probe)
			logger.Warn("skipping malformed line", "line", lineNum, "error", err)
			continue
		}
		entries = append(entries, Entry{Line: lineNum, Raw: json.RawMessage(line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line %d: %w", lineNum+1, err)
	}
	return entries, nil
}
