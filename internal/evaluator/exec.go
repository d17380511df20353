package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/verte-zerg/tripscore/internal/model"
)

// Exec runs an external evaluator command once per plan. The command reads
// {"tier", "query", "plan"} from stdin and writes a JSON object mapping
// constraint names to outcomes on stdout.
type Exec struct {
	Tier    Tier
	Command []string
}

// NewExec builds an Exec evaluator from a shell-style command line.
func NewExec(tier Tier, commandLine string) (*Exec, error) {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s evaluator command is empty", tier)
	}
	return &Exec{Tier: tier, Command: parts}, nil
}

type execRequest struct {
	Tier  Tier             `json:"tier"`
	Query json.RawMessage  `json:"query"`
	Plan  []model.DayEntry `json:"plan"`
}

// Evaluate implements Evaluator.
func (e *Exec) Evaluate(ctx context.Context, query model.Query, plan []model.DayEntry) (model.Outcomes, error) {
	payload, err := json.Marshal(execRequest{Tier: e.Tier, Query: query.Raw, Plan: plan})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("failed to run %s: %w", e.Command[0], err)
		}
		return nil, fmt.Errorf("failed to run %s: %w: %s", e.Command[0], err, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, nil
	}
	var outcomes model.Outcomes
	if err := json.Unmarshal(out, &outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", e.Command[0], err)
	}
	return outcomes, nil
}
