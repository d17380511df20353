// Package spatial scores itineraries by how close their points of interest
// sit to public transit.
package spatial

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/record"
)

// Defaults of the decay curve, in meters and per meter.
const (
	DefaultD0     = 5000.0
	DefaultLambda = 0.0002
)

const transitMarker = "nearest transit:"

var distancePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*m`)

// Decay maps a transit distance to a score. Up to D0 meters the score falls
// linearly from 1 to 0.5; beyond it the score decays exponentially.
type Decay struct {
	D0     float64
	Lambda float64
}

// DefaultDecay returns the standard curve.
func DefaultDecay() Decay {
	return Decay{D0: DefaultD0, Lambda: DefaultLambda}
}

// Score returns the decay value of a distance in meters.
func (d Decay) Score(distance float64) float64 {
	if distance <= d.D0 {
		return 1 - 0.5*(distance/d.D0)
	}
	return 0.5 * math.Exp(-d.Lambda*(distance-d.D0))
}

// Distances extracts the nearest-transit distances from a point-of-interest
// list. Segments without the marker or without a number followed by "m" are
// ignored.
func Distances(poiList string) []float64 {
	var out []float64
	for _, segment := range strings.Split(poiList, ";") {
		_, after, ok := strings.Cut(segment, transitMarker)
		if !ok {
			continue
		}
		match := distancePattern.FindStringSubmatch(after)
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// PlanScore averages the per-day mean scores. Days without any distance are
// left out; a plan without distances scores 0.
func (d Decay) PlanScore(plan []model.DayEntry) float64 {
	total, days := 0.0, 0
	for _, day := range plan {
		distances := Distances(day.PointsOfInterest)
		if len(distances) == 0 {
			continue
		}
		sum := 0.0
		for _, dist := range distances {
			sum += d.Score(dist)
		}
		total += sum / float64(len(distances))
		days++
	}
	if days == 0 {
		return 0
	}
	return total / float64(days)
}

// FileSummary is the mean plan score over one file.
type FileSummary struct {
	Plans int     `json:"plans" yaml:"plans"`
	Mean  float64 `json:"mean" yaml:"mean"`
}

// FileScore averages plan scores over a JSONL file. When planKey is set and a
// record nests its plan under that key, the nested plan is scored. Records
// without a plan score 0 and still count.
func (d Decay) FileScore(path, planKey string, logger *slog.Logger) (FileSummary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := record.Load(path, logger)
	if err != nil {
		return FileSummary{}, err
	}
	var sum FileSummary
	total := 0.0
	for _, e := range entries {
		plan, _, err := record.PlanOf(e.Raw, planKey)
		if err != nil {
			logger.Warn("skipping record", "path", path, "line", e.Line, "error", err)
			continue
		}
		total += d.PlanScore(plan)
		sum.Plans++
	}
	if sum.Plans > 0 {
		sum.Mean = total / float64(sum.Plans)
	}
	return sum, nil
}

// Adaptability compares the spatial scores of reference and generated plans.
type Adaptability struct {
	Reference FileSummary `json:"reference" yaml:"reference"`
	Generated FileSummary `json:"generated" yaml:"generated"`
	// Delta is the reference mean minus the generated mean.
	Delta float64 `json:"delta" yaml:"delta"`
}

// CompareFiles scores both files and reports their difference.
func (d Decay) CompareFiles(refPath, genPath, planKey string, logger *slog.Logger) (Adaptability, error) {
	ref, err := d.FileScore(refPath, planKey, logger)
	if err != nil {
		return Adaptability{}, err
	}
	gen, err := d.FileScore(genPath, planKey, logger)
	if err != nil {
		return Adaptability{}, err
	}
	return Adaptability{Reference: ref, Generated: gen, Delta: ref.Mean - gen.Mean}, nil
}
