// Package mitigation checks whether revised plans changed anything compared
// to the plans they revise.
package mitigation

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/record"
)

// CSV column names.
const (
	ColumnAnnotation = "annotation_plan"
	ColumnRevised    = "revised_plan"
)

// Mitigated reports whether a revision differs from the annotation: a
// different number of days, or any day whose trimmed point-of-interest list
// changed.
func Mitigated(annotation, revised []model.DayEntry) bool {
	if len(annotation) != len(revised) {
		return true
	}
	for i := range annotation {
		if strings.TrimSpace(annotation[i].PointsOfInterest) != strings.TrimSpace(revised[i].PointsOfInterest) {
			return true
		}
	}
	return false
}

// Summary is the mitigation rate over a CSV file.
type Summary struct {
	Rows      int     `json:"rows" yaml:"rows"`
	Mitigated int     `json:"mitigated" yaml:"mitigated"`
	Rate      float64 `json:"rate" yaml:"rate"`
}

// RateCSV reads annotation/revised plan pairs from a CSV file. A row whose
// plans cannot be parsed counts as not mitigated.
func RateCSV(path string, logger *slog.Logger) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close of a read-only file.
			_ = cerr
		}
	}()
	return Rate(file, logger)
}

// Rate is RateCSV over an arbitrary reader.
func Rate(r io.Reader, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, errors.New("missing CSV header")
		}
		return Summary{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	annIdx, revIdx := columnIndex(header, ColumnAnnotation), columnIndex(header, ColumnRevised)
	if annIdx < 0 || revIdx < 0 {
		return Summary{}, fmt.Errorf("CSV needs %q and %q columns", ColumnAnnotation, ColumnRevised)
	}

	var sum Summary
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}
		sum.Rows++
		ok, err := rowMitigated(fields, annIdx, revIdx)
		if err != nil {
			logger.Warn("row failed", "row", row, "error", err)
			continue
		}
		if ok {
			sum.Mitigated++
		}
	}
	if sum.Rows > 0 {
		sum.Rate = float64(sum.Mitigated) / float64(sum.Rows)
	}
	return sum, nil
}

func rowMitigated(fields []string, annIdx, revIdx int) (bool, error) {
	if annIdx >= len(fields) || revIdx >= len(fields) {
		return false, fmt.Errorf("row has %d fields", len(fields))
	}
	annotation, _, err := record.PlanOf(json.RawMessage(fields[annIdx]), "")
	if err != nil {
		return false, fmt.Errorf("annotation plan: %w", err)
	}
	revised, _, err := record.PlanOf(json.RawMessage(fields[revIdx]), "")
	if err != nil {
		return false, fmt.Errorf("revised plan: %w", err)
	}
	return Mitigated(annotation, revised), nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}
