package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Breakdown section titles.
const (
	SectionCommonsense = "Commonsense Constraint"
	SectionHard        = "Hard Constraint"
)

const weakestTop = 5

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))

// Breakdown maps section → label → level → days → "passed/eligible".
type Breakdown map[string]map[string]map[model.Level]map[int]string

// Document is the serializable form of a Result.
type Document struct {
	SetType   string             `json:"set_type" yaml:"set_type"`
	Rates     map[string]float64 `json:"rates" yaml:"rates"`
	Counters  Counters           `json:"counters" yaml:"counters"`
	Breakdown Breakdown          `json:"breakdown" yaml:"breakdown"`
}

// SectionTitle returns the breakdown section of a tier.
func SectionTitle(tier evaluator.Tier) string {
	if tier == evaluator.TierHard {
		return SectionHard
	}
	return SectionCommonsense
}

// BuildBreakdown groups cells by section, label, level and days.
func BuildBreakdown(cells []Cell) Breakdown {
	b := Breakdown{}
	for _, cell := range cells {
		section := SectionTitle(cell.Tier)
		if b[section] == nil {
			b[section] = map[string]map[model.Level]map[int]string{}
		}
		if b[section][cell.Label] == nil {
			b[section][cell.Label] = map[model.Level]map[int]string{}
		}
		if b[section][cell.Label][cell.Level] == nil {
			b[section][cell.Label][cell.Level] = map[int]string{}
		}
		b[section][cell.Label][cell.Level][cell.Days] = cell.Fraction()
	}
	return b
}

// NewDocument builds the serializable report of a result.
func NewDocument(res Result) Document {
	return Document{
		SetType:   res.Partition.Name,
		Rates:     res.Rates,
		Counters:  res.Counters,
		Breakdown: BuildBreakdown(res.Cells),
	}
}

// TextOptions controls text rendering.
type TextOptions struct {
	Color bool
}

// ShouldUseColor reports whether styled output suits w. NO_COLOR always
// disables color; force enables it for non-terminals.
func ShouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// Render writes a result in the requested format.
func Render(w io.Writer, res Result, format string, opts TextOptions) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return RenderText(w, res, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewDocument(res))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(res)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (available: text, json, yaml)", format)
	}
}

// RenderText prints headline rates, the per-partition breakdown and the
// weakest constraints.
func RenderText(w io.Writer, res Result, opts TextOptions) error {
	title := func(s string) string {
		if opts.Color {
			return titleStyle.Render(s)
		}
		return s
	}

	if _, err := fmt.Fprintln(w, title(fmt.Sprintf("Evaluation (%s)", res.Partition.Name))); err != nil {
		return err
	}
	for _, name := range MetricNames {
		if _, err := fmt.Fprintf(w, "%s: %.2f%%\n", name, res.Rates[name]*100); err != nil {
			return err
		}
	}
	c := res.Counters
	if _, err := fmt.Fprintf(w, "Records: %d (delivered %d, evaluated %d, degenerate %d, failed %d)\n\n",
		c.Records, c.Delivered, c.Evaluated, c.Degenerate, c.Failed); err != nil {
		return err
	}

	for _, tier := range []evaluator.Tier{evaluator.TierCommonsense, evaluator.TierHard} {
		if _, err := fmt.Fprintln(w, title(SectionTitle(tier))); err != nil {
			return err
		}
		headers, rows := BreakdownRows(res.Cells, tier)
		if err := writeLines(w, FormatTable(headers, rows, rightAlignFrom(1, len(headers)))); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, ""); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, title("Final Pass by Level")); err != nil {
		return err
	}
	for _, level := range model.Levels {
		if _, err := fmt.Fprintf(w, "%s: %d\n", level, c.FinalByLevel[level]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}

	weakest := WeakestConstraints(res.Cells, weakestTop)
	if len(weakest) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, title("Weakest Constraints")); err != nil {
		return err
	}
	rows := make([][]string, 0, len(weakest))
	for _, s := range weakest {
		rows = append(rows, []string{
			s.Label,
			string(s.Tier),
			fmt.Sprintf("%d/%d", s.Passed, s.Eligible),
			fmt.Sprintf("%.2f%%", s.Ratio()*100),
		})
	}
	return writeLines(w, FormatTable([]string{"Constraint", "Tier", "Passed", "Rate"}, rows, rightAlignFrom(2, 4)))
}

// BreakdownRows lays out one tier as label rows and level-days columns.
func BreakdownRows(cells []Cell, tier evaluator.Tier) ([]string, [][]string) {
	headers := []string{"Constraint"}
	for _, level := range model.Levels {
		for _, d := range model.DayCounts {
			headers = append(headers, fmt.Sprintf("%s-%d", level, d))
		}
	}
	index := map[string]int{}
	var rows [][]string
	for _, cell := range cells {
		if cell.Tier != tier {
			continue
		}
		i, ok := index[cell.Key]
		if !ok {
			i = len(rows)
			index[cell.Key] = i
			row := make([]string, len(headers))
			row[0] = cell.Label
			rows = append(rows, row)
		}
		rows[i][columnOf(cell.Level, cell.Days)] = cell.Fraction()
	}
	return headers, rows
}

func columnOf(level model.Level, days int) int {
	col := 1
	for _, l := range model.Levels {
		for _, d := range model.DayCounts {
			if l == level && d == days {
				return col
			}
			col++
		}
	}
	return 0
}

func rightAlignFrom(first, count int) map[int]bool {
	cols := map[int]bool{}
	for i := first; i < count; i++ {
		cols[i] = true
	}
	return cols
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
