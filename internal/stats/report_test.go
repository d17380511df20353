package stats

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
)

func sampleResult(t *testing.T) Result {
	t.Helper()
	q := query(model.LevelMedium, 3, map[string]string{model.CategoryCuisine: "Thai"})
	results := []evaluator.PlanResult{
		evaluated(0, q, passingCommonsense(), model.Outcomes{
			"valid_cost":    model.Single(true),
			"valid_cuisine": model.Single(false),
		}),
	}
	res, err := Calculate(results, CountEligibility([]model.Query{q}, quietLogger()), testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	return res
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(t), FormatText, TextOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Evaluation (test)",
		"Delivery Rate: 10.00%",
		"Commonsense Constraint Micro Pass Rate: 10.00%",
		"Final Pass Rate: 0.00%",
		"Records: 1 (delivered 1, evaluated 1, degenerate 0, failed 0)",
		SectionCommonsense,
		SectionHard,
		"medium-3",
		"Final Pass by Level",
		"Weakest Constraints",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape codes without color")
	}

	var cuisine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Cuisine ") {
			cuisine = line
			break
		}
	}
	if !strings.Contains(cuisine, "0/1") {
		t.Fatalf("expected cuisine row with 0/1, got %q", cuisine)
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(t), FormatJSON, TextOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.SetType != "test" {
		t.Fatalf("unexpected set type %q", doc.SetType)
	}
	if doc.Rates[MetricHardMicro] != 0.05 {
		t.Fatalf("unexpected hard micro rate %v", doc.Rates[MetricHardMicro])
	}
	if got := doc.Breakdown[SectionHard]["Budget"][model.LevelMedium][3]; got != "1/1" {
		t.Fatalf("expected budget 1/1, got %q", got)
	}
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(t), "YAML", TextOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["set_type"] != "test" {
		t.Fatalf("unexpected set type %v", doc["set_type"])
	}
	if _, ok := doc["breakdown"]; !ok {
		t.Fatalf("expected breakdown section")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if err := Render(&bytes.Buffer{}, Result{}, "xml", TextOptions{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestShouldUseColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	if ShouldUseColor(&bytes.Buffer{}, false) {
		t.Fatalf("expected no color for buffers")
	}
	if !ShouldUseColor(&bytes.Buffer{}, true) {
		t.Fatalf("expected forced color")
	}
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor(&bytes.Buffer{}, true) {
		t.Fatalf("expected NO_COLOR to win")
	}
}
